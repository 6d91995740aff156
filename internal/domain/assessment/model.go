// Package assessment records ICU scores against patients. Every write runs
// the scoring engine over the full raw input before anything is persisted.
package assessment

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/icu/icu/internal/scoring"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Score types, as used in metrics, logs and the export workbook.
const (
	TypeSeverity       = "severity"
	TypeWorkload       = "workload"
	TypeCategorization = "categorization"
)

// SeverityEvaluation is an APACHE-II style severity score.
//
// Callers send either all fourteen sub-scores (with optional
// rangosSeleccionados) or the raw mediciones; with mediciones the sub-scores
// and ranges are derived and whatever points were sent are ignored.
type SeverityEvaluation struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"pacienteId"`
	UserID    string    `json:"usuarioId"`

	scoring.SeverityPoints
	Measurements   *scoring.SeverityMeasurements `json:"mediciones,omitempty"`
	SelectedRanges map[string]string             `json:"rangosSeleccionados,omitempty"`

	TotalScore     int               `json:"puntajeTotal"`
	RiskPercentage string            `json:"riesgoMortalidad"`
	RiskLevel      scoring.RiskLevel `json:"nivelRiesgo"`

	CreatedAt time.Time `json:"creadoEn"`
	UpdatedAt time.Time `json:"actualizadoEn"`

	// submitted keeps which sub-scores a decoded body actually carried.
	submitted *scoring.SeverityPointsInput
}

// UnmarshalJSON records which sub-scores were present so that Recompute can
// reject a body that leaves any of them out.
func (e *SeverityEvaluation) UnmarshalJSON(data []byte) error {
	type plain SeverityEvaluation
	in := struct {
		*plain
		scoring.SeverityPointsInput
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.SeverityPoints, _ = in.SeverityPointsInput.Points()
	e.submitted = &in.SeverityPointsInput
	return nil
}

// Recompute derives every computed field from the raw input. On error the
// evaluation is left untouched.
func (e *SeverityEvaluation) Recompute() error {
	var (
		res scoring.SeverityResult
		err error
	)
	switch {
	case e.Measurements != nil:
		res, err = scoring.ComputeSeverity(*e.Measurements)
	case e.submitted != nil:
		res, err = scoring.ScoreSeverityInput(*e.submitted, e.SelectedRanges)
	default:
		res, err = scoring.ScoreSeverity(e.SeverityPoints, e.SelectedRanges)
	}
	if err != nil {
		return err
	}
	e.submitted = nil
	e.SeverityPoints = res.Points
	e.SelectedRanges = res.SelectedRanges
	e.TotalScore = res.TotalScore
	e.RiskPercentage = res.RiskPercentage
	e.RiskLevel = res.RiskLevel
	return nil
}

// WorkloadRecord is a NAS style nursing workload score.
type WorkloadRecord struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"pacienteId"`
	UserID    string    `json:"usuarioId"`

	scoring.WorkloadItems
	TotalScore scoring.Percent `json:"puntuacionTotal"`

	CreatedAt time.Time `json:"creadoEn"`
	UpdatedAt time.Time `json:"actualizadoEn"`

	// unknown holds body keys that are neither record fields nor items.
	unknown []string
}

var workloadRecordFields = map[string]bool{
	"id": true, "pacienteId": true, "usuarioId": true,
	"puntuacionTotal": true, "creadoEn": true, "actualizadoEn": true,
}

// UnmarshalJSON keeps unrecognized keys so that Recompute rejects them
// instead of scoring the body without them.
func (w *WorkloadRecord) UnmarshalJSON(data []byte) error {
	type plain WorkloadRecord
	if err := json.Unmarshal(data, (*plain)(w)); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	w.unknown = nil
	for k := range keys {
		if !workloadRecordFields[k] && !scoring.IsWorkloadItem(k) {
			w.unknown = append(w.unknown, k)
		}
	}
	sort.Strings(w.unknown)
	return nil
}

func (w *WorkloadRecord) Recompute() error {
	flags := w.WorkloadItems.Flags()
	for _, k := range w.unknown {
		flags[k] = true
	}
	res, err := scoring.ComputeWorkload(flags)
	if err != nil {
		return err
	}
	w.unknown = nil
	w.TotalScore = res.TotalScore
	return nil
}

// Categorization is the five-axis patient categorization.
type Categorization struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"pacienteId"`
	UserID    string    `json:"usuarioId"`

	scoring.CategorizationScores
	TotalScore    int                `json:"puntajeTotal"`
	Complexity    scoring.Complexity `json:"complejidad"`
	StaffingRatio string             `json:"cargaAsistencial"`

	CreatedAt time.Time `json:"creadoEn"`
	UpdatedAt time.Time `json:"actualizadoEn"`
}

func (c *Categorization) Recompute() error {
	res, err := scoring.ComputeCategorization(c.CategorizationScores)
	if err != nil {
		return err
	}
	c.TotalScore = res.TotalScore
	c.Complexity = res.Complexity
	c.StaffingRatio = res.StaffingRatio
	return nil
}

// PatientSummary is the latest record of each score type. Types never
// recorded for the patient are nil.
type PatientSummary struct {
	PatientID      uuid.UUID           `json:"pacienteId"`
	Severity       *SeverityEvaluation `json:"severidad"`
	Workload       *WorkloadRecord     `json:"cargaTrabajo"`
	Categorization *Categorization     `json:"categorizacion"`
}
