package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repositories return pgx.ErrNoRows (possibly wrapped) for missing records.

// Cursor is a record's position in a patient's listing, which runs newest
// first with ties broken by id.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ListAfter implementations return up to limit records strictly after the
// cursor, or from the newest record when after is nil. Rows inserted ahead of
// the cursor never shift later pages.

type SeverityRepository interface {
	Create(ctx context.Context, e *SeverityEvaluation) error
	GetByID(ctx context.Context, id uuid.UUID) (*SeverityEvaluation, error)
	Update(ctx context.Context, e *SeverityEvaluation) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*SeverityEvaluation, int, error)
	ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*SeverityEvaluation, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*SeverityEvaluation, error)
}

type WorkloadRepository interface {
	Create(ctx context.Context, w *WorkloadRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*WorkloadRecord, error)
	Update(ctx context.Context, w *WorkloadRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*WorkloadRecord, int, error)
	ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*WorkloadRecord, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*WorkloadRecord, error)
}

type CategorizationRepository interface {
	Create(ctx context.Context, c *Categorization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Categorization, error)
	Update(ctx context.Context, c *Categorization) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Categorization, int, error)
	ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*Categorization, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Categorization, error)
}
