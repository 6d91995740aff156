package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/icu/icu/internal/platform/cache"
	"github.com/icu/icu/internal/platform/db"
	"github.com/icu/icu/internal/platform/telemetry"
	"github.com/icu/icu/internal/scoring"
)

// ErrInvalid marks requests missing the patient or user they belong to.
var ErrInvalid = errors.New("invalid request")

const DefaultSummaryTTL = 30 * time.Second

type Service struct {
	severity        SeverityRepository
	workload        WorkloadRepository
	categorizations CategorizationRepository
	tx              db.TxRunner

	cache      cache.Cache
	summaryTTL time.Duration
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

type Option func(*Service)

// WithCache caches patient summaries in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.summaryTTL = ttl
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	severity SeverityRepository,
	workload WorkloadRepository,
	categorizations CategorizationRepository,
	tx db.TxRunner,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		severity:        severity,
		workload:        workload,
		categorizations: categorizations,
		tx:              tx,
		cache:           cache.Noop{},
		summaryTTL:      DefaultSummaryTTL,
		metrics:         telemetry.NoopMetrics(),
		logger:          logger.With().Str("component", "assessment").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record is what the write path needs from each score type.
type record interface {
	Recompute() error
	scoreTotal() float64
}

func (e *SeverityEvaluation) scoreTotal() float64 { return float64(e.TotalScore) }
func (w *WorkloadRecord) scoreTotal() float64     { return w.TotalScore.Float64() }
func (c *Categorization) scoreTotal() float64     { return float64(c.TotalScore) }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireOwner(patientID uuid.UUID, userID string) error {
	if patientID == uuid.Nil {
		return fmt.Errorf("%w: pacienteId is required", ErrInvalid)
	}
	if userID == "" {
		return fmt.Errorf("%w: usuarioId is required", ErrInvalid)
	}
	return nil
}

// compute runs the engine and accounts for the outcome.
func (s *Service) compute(ctx context.Context, scoreType, op string, rec record) error {
	if err := rec.Recompute(); err != nil {
		if verr, ok := scoring.AsValidationError(err); ok {
			s.metrics.RecordRejection(ctx, scoreType, string(verr.Reason))
			s.logger.Info().
				Str("score_type", scoreType).
				Str("op", op).
				Str("reason", string(verr.Reason)).
				Int("violations", len(verr.Violations)).
				Msg("score input rejected")
		}
		return err
	}
	s.metrics.RecordScore(ctx, scoreType, op, rec.scoreTotal())
	s.logger.Debug().
		Str("score_type", scoreType).
		Str("op", op).
		Float64("total", rec.scoreTotal()).
		Msg("score computed")
	return nil
}

// create computes rec and persists it in one transaction.
func (s *Service) create(ctx context.Context, scoreType string, patientID uuid.UUID, userID string, rec record, insert func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "assessment.create",
		attribute.String("score.type", scoreType),
		attribute.String("patient.id", patientID.String()))
	defer span.End()

	if err := requireOwner(patientID, userID); err != nil {
		return err
	}
	if err := s.compute(ctx, scoreType, "create", rec); err != nil {
		return err
	}
	if err := s.tx.InTx(ctx, insert); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("create %s: %w", scoreType, err)
	}
	s.invalidate(ctx, patientID)
	return nil
}

// replace loads the stored record, recomputes rec from its full input and
// writes it back, all inside one transaction. load returns the stored
// patient so it cannot be changed by an update.
func (s *Service) replace(ctx context.Context, scoreType string, userID string, rec record,
	load func(ctx context.Context) (uuid.UUID, error), update func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "assessment.replace", attribute.String("score.type", scoreType))
	defer span.End()

	if userID == "" {
		return fmt.Errorf("%w: usuarioId is required", ErrInvalid)
	}
	var patientID uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if patientID, err = load(ctx); err != nil {
			return notFound(err)
		}
		if err := s.compute(ctx, scoreType, "update", rec); err != nil {
			return err
		}
		return notFound(update(ctx))
	})
	if err != nil {
		if _, ok := scoring.AsValidationError(err); !ok && !errors.Is(err, ErrNotFound) {
			telemetry.RecordError(span, err)
			return fmt.Errorf("update %s: %w", scoreType, err)
		}
		return err
	}
	s.invalidate(ctx, patientID)
	return nil
}

func (s *Service) remove(ctx context.Context, scoreType string,
	load func(ctx context.Context) (uuid.UUID, error), del func(ctx context.Context) error) error {
	var patientID uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if patientID, err = load(ctx); err != nil {
			return notFound(err)
		}
		return notFound(del(ctx))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete %s: %w", scoreType, err)
	}
	s.invalidate(ctx, patientID)
	return nil
}

// -- Severity --

func (s *Service) PreviewSeverity(ctx context.Context, e *SeverityEvaluation) error {
	return s.compute(ctx, TypeSeverity, "preview", e)
}

func (s *Service) CreateSeverity(ctx context.Context, e *SeverityEvaluation) error {
	return s.create(ctx, TypeSeverity, e.PatientID, e.UserID, e, func(ctx context.Context) error {
		return s.severity.Create(ctx, e)
	})
}

func (s *Service) GetSeverity(ctx context.Context, id uuid.UUID) (*SeverityEvaluation, error) {
	e, err := s.severity.GetByID(ctx, id)
	return e, notFound(err)
}

// UpdateSeverity replaces the raw input of e.ID and recomputes every derived
// field.
func (s *Service) UpdateSeverity(ctx context.Context, e *SeverityEvaluation) error {
	return s.replace(ctx, TypeSeverity, e.UserID, e,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.severity.GetByID(ctx, e.ID)
			if err != nil {
				return uuid.Nil, err
			}
			e.PatientID = cur.PatientID
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.severity.Update(ctx, e) })
}

func (s *Service) DeleteSeverity(ctx context.Context, id uuid.UUID) error {
	return s.remove(ctx, TypeSeverity,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.severity.GetByID(ctx, id)
			if err != nil {
				return uuid.Nil, err
			}
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.severity.Delete(ctx, id) })
}

func (s *Service) ListSeverity(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*SeverityEvaluation, int, error) {
	return s.severity.ListByPatient(ctx, patientID, limit, offset)
}

// -- Workload --

func (s *Service) PreviewWorkload(ctx context.Context, w *WorkloadRecord) error {
	return s.compute(ctx, TypeWorkload, "preview", w)
}

func (s *Service) CreateWorkload(ctx context.Context, w *WorkloadRecord) error {
	return s.create(ctx, TypeWorkload, w.PatientID, w.UserID, w, func(ctx context.Context) error {
		return s.workload.Create(ctx, w)
	})
}

func (s *Service) GetWorkload(ctx context.Context, id uuid.UUID) (*WorkloadRecord, error) {
	w, err := s.workload.GetByID(ctx, id)
	return w, notFound(err)
}

func (s *Service) UpdateWorkload(ctx context.Context, w *WorkloadRecord) error {
	return s.replace(ctx, TypeWorkload, w.UserID, w,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.workload.GetByID(ctx, w.ID)
			if err != nil {
				return uuid.Nil, err
			}
			w.PatientID = cur.PatientID
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.workload.Update(ctx, w) })
}

func (s *Service) DeleteWorkload(ctx context.Context, id uuid.UUID) error {
	return s.remove(ctx, TypeWorkload,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.workload.GetByID(ctx, id)
			if err != nil {
				return uuid.Nil, err
			}
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.workload.Delete(ctx, id) })
}

func (s *Service) ListWorkload(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*WorkloadRecord, int, error) {
	return s.workload.ListByPatient(ctx, patientID, limit, offset)
}

// -- Categorization --

func (s *Service) PreviewCategorization(ctx context.Context, c *Categorization) error {
	return s.compute(ctx, TypeCategorization, "preview", c)
}

func (s *Service) CreateCategorization(ctx context.Context, c *Categorization) error {
	return s.create(ctx, TypeCategorization, c.PatientID, c.UserID, c, func(ctx context.Context) error {
		return s.categorizations.Create(ctx, c)
	})
}

func (s *Service) GetCategorization(ctx context.Context, id uuid.UUID) (*Categorization, error) {
	c, err := s.categorizations.GetByID(ctx, id)
	return c, notFound(err)
}

func (s *Service) UpdateCategorization(ctx context.Context, c *Categorization) error {
	return s.replace(ctx, TypeCategorization, c.UserID, c,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.categorizations.GetByID(ctx, c.ID)
			if err != nil {
				return uuid.Nil, err
			}
			c.PatientID = cur.PatientID
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.categorizations.Update(ctx, c) })
}

func (s *Service) DeleteCategorization(ctx context.Context, id uuid.UUID) error {
	return s.remove(ctx, TypeCategorization,
		func(ctx context.Context) (uuid.UUID, error) {
			cur, err := s.categorizations.GetByID(ctx, id)
			if err != nil {
				return uuid.Nil, err
			}
			return cur.PatientID, nil
		},
		func(ctx context.Context) error { return s.categorizations.Delete(ctx, id) })
}

func (s *Service) ListCategorizations(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Categorization, int, error) {
	return s.categorizations.ListByPatient(ctx, patientID, limit, offset)
}

// -- Summary --

// Summaries are cached under a per-patient generation. Every write moves the
// generation on, so a read that loaded before the write can only store its
// result under a key nothing reads any more.
func summaryKey(patientID uuid.UUID, gen string) string {
	return "summary:" + patientID.String() + ":" + gen
}

func summaryGenKey(patientID uuid.UUID) string {
	return "summary-gen:" + patientID.String()
}

// summaryGeneration returns the current generation. ok is false when the
// cache could not be consulted.
func (s *Service) summaryGeneration(ctx context.Context, patientID uuid.UUID) (gen string, ok bool) {
	err := s.cache.Get(ctx, summaryGenKey(patientID), &gen)
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, cache.ErrMiss):
		return "0", true
	}
	s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary generation lookup failed")
	return "", false
}

func (s *Service) invalidate(ctx context.Context, patientID uuid.UUID) {
	old, ok := s.summaryGeneration(ctx, patientID)
	// The generation outlives any summary stored under it.
	if err := s.cache.Set(ctx, summaryGenKey(patientID), uuid.NewString(), 10*s.summaryTTL); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary invalidation failed")
		return
	}
	if ok {
		_ = s.cache.Delete(ctx, summaryKey(patientID, old))
	}
}

// Summary returns the latest record of each score type for the patient,
// served from cache when possible.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "assessment.Summary", attribute.String("patient.id", patientID.String()))
	defer span.End()

	fetch := func(ctx context.Context) (*PatientSummary, error) { return s.loadSummary(ctx, patientID) }

	var (
		sum *PatientSummary
		hit bool
		err error
	)
	if gen, ok := s.summaryGeneration(ctx, patientID); ok {
		sum, hit, err = cache.FindAndCache(ctx, s.cache, s.logger, summaryKey(patientID, gen), s.summaryTTL, fetch)
	} else {
		sum, err = fetch(ctx)
	}
	s.metrics.RecordCache(ctx, "summary", hit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return sum, nil
}

func (s *Service) loadSummary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error) {
	sum := &PatientSummary{PatientID: patientID}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.severity.LatestByPatient(ctx, patientID)
		sum.Severity, err = latest(e, err)
		return err
	})
	g.Go(func() error {
		w, err := s.workload.LatestByPatient(ctx, patientID)
		sum.Workload, err = latest(w, err)
		return err
	})
	g.Go(func() error {
		c, err := s.categorizations.LatestByPatient(ctx, patientID)
		sum.Categorization, err = latest(c, err)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}
	return sum, nil
}

// latest treats "no rows" as "never recorded".
func latest[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
