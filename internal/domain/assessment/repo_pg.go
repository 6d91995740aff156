package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icu/icu/internal/platform/db"
	"github.com/icu/icu/internal/scoring"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// affected turns a zero-row UPDATE or DELETE into pgx.ErrNoRows.
func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*T
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// listAfter pages a patient's rows in ListByPatient order from a cursor.
func listAfter[T any](ctx context.Context, q queryable, table, cols string, scan func(pgx.Row) (*T, error),
	patientID uuid.UUID, after *Cursor, limit int) ([]*T, error) {
	sql := `SELECT ` + cols + ` FROM ` + table + ` WHERE patient_id = $1`
	args := []interface{}{patientID}
	if after != nil {
		sql += ` AND (created_at < $2 OR (created_at = $2 AND id > $3))`
		args = append(args, after.CreatedAt, after.ID)
	}
	args = append(args, limit)
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))
	rows, err := q.Query(ctx, sql, args...)
	return collect(rows, err, scan)
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ",")
}

func assignments(cols []string, from int) string {
	as := make([]string, len(cols))
	for i, c := range cols {
		as[i] = fmt.Sprintf("%s=$%d", c, from+i)
	}
	return strings.Join(as, ", ")
}

// =========== Severity Repository ===========

type severityRepoPG struct{ pool *pgxpool.Pool }

func NewSeverityRepoPG(pool *pgxpool.Pool) SeverityRepository {
	return &severityRepoPG{pool: pool}
}

func (r *severityRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

var severityValueCols = []string{
	"temperatura", "presion_arterial_media", "frecuencia_cardiaca", "frecuencia_respiratoria",
	"oxigenacion", "ph_arterial", "sodio_serico", "potasio_serico", "creatinina_serica",
	"hematocrito", "leucocitos", "escala_glasgow", "edad", "enfermedad_cronica",
	"mediciones", "rangos_seleccionados", "puntaje_total", "riesgo_mortalidad", "nivel_riesgo",
}

var severityCols = `id, patient_id, user_id, ` + strings.Join(severityValueCols, ", ") + `, created_at, updated_at`

func severityValues(e *SeverityEvaluation) ([]interface{}, error) {
	var measurements, ranges []byte
	var err error
	if e.Measurements != nil {
		if measurements, err = json.Marshal(e.Measurements); err != nil {
			return nil, fmt.Errorf("encode mediciones: %w", err)
		}
	}
	if len(e.SelectedRanges) > 0 {
		if ranges, err = json.Marshal(e.SelectedRanges); err != nil {
			return nil, fmt.Errorf("encode rangos: %w", err)
		}
	}
	p := e.SeverityPoints
	return []interface{}{
		p.Temperature, p.MeanArterialPressure, p.HeartRate, p.RespiratoryRate,
		p.Oxygenation, p.ArterialPH, p.Sodium, p.Potassium, p.Creatinine,
		p.Hematocrit, p.WhiteCellCount, p.Glasgow, p.Age, p.ChronicHealth,
		measurements, ranges, e.TotalScore, e.RiskPercentage, string(e.RiskLevel),
	}, nil
}

func scanSeverity(row pgx.Row) (*SeverityEvaluation, error) {
	var e SeverityEvaluation
	var measurements, ranges []byte
	var level string
	p := &e.SeverityPoints
	err := row.Scan(&e.ID, &e.PatientID, &e.UserID,
		&p.Temperature, &p.MeanArterialPressure, &p.HeartRate, &p.RespiratoryRate,
		&p.Oxygenation, &p.ArterialPH, &p.Sodium, &p.Potassium, &p.Creatinine,
		&p.Hematocrit, &p.WhiteCellCount, &p.Glasgow, &p.Age, &p.ChronicHealth,
		&measurements, &ranges, &e.TotalScore, &e.RiskPercentage, &level,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.RiskLevel = scoring.RiskLevel(level)
	if len(measurements) > 0 {
		e.Measurements = &scoring.SeverityMeasurements{}
		if err := json.Unmarshal(measurements, e.Measurements); err != nil {
			return nil, fmt.Errorf("decode mediciones: %w", err)
		}
	}
	if len(ranges) > 0 {
		if err := json.Unmarshal(ranges, &e.SelectedRanges); err != nil {
			return nil, fmt.Errorf("decode rangos: %w", err)
		}
	}
	return &e, nil
}

func (r *severityRepoPG) Create(ctx context.Context, e *SeverityEvaluation) error {
	e.ID = uuid.New()
	vals, err := severityValues(e)
	if err != nil {
		return err
	}
	args := append([]interface{}{e.ID, e.PatientID, e.UserID}, vals...)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO severity_evaluation (id, patient_id, user_id, `+strings.Join(severityValueCols, ", ")+`)
		VALUES (`+placeholders(1, len(args))+`)
		RETURNING created_at, updated_at`, args...).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *severityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SeverityEvaluation, error) {
	return scanSeverity(r.conn(ctx).QueryRow(ctx, `SELECT `+severityCols+` FROM severity_evaluation WHERE id = $1`, id))
}

func (r *severityRepoPG) Update(ctx context.Context, e *SeverityEvaluation) error {
	vals, err := severityValues(e)
	if err != nil {
		return err
	}
	args := append([]interface{}{e.ID}, vals...)
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE severity_evaluation SET `+assignments(severityValueCols, 2)+`, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`, args...).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *severityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM severity_evaluation WHERE id = $1`, id))
}

func (r *severityRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*SeverityEvaluation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM severity_evaluation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+severityCols+` FROM severity_evaluation WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	items, err := collect(rows, err, scanSeverity)
	return items, total, err
}

func (r *severityRepoPG) ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*SeverityEvaluation, error) {
	return listAfter(ctx, r.conn(ctx), "severity_evaluation", severityCols, scanSeverity, patientID, after, limit)
}

func (r *severityRepoPG) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*SeverityEvaluation, error) {
	return scanSeverity(r.conn(ctx).QueryRow(ctx, `SELECT `+severityCols+` FROM severity_evaluation WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT 1`, patientID))
}

// =========== Workload Repository ===========

type workloadRepoPG struct{ pool *pgxpool.Pool }

func NewWorkloadRepoPG(pool *pgxpool.Pool) WorkloadRepository {
	return &workloadRepoPG{pool: pool}
}

func (r *workloadRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

// The item columns are named after the item keys.
var workloadValueCols = append(scoring.WorkloadKeys(), "puntuacion_total")

var workloadCols = `id, patient_id, user_id, ` + strings.Join(workloadValueCols, ", ") + `, created_at, updated_at`

func workloadValues(w *WorkloadRecord) []interface{} {
	refs := w.Refs()
	vals := make([]interface{}, 0, len(refs)+1)
	for _, ref := range refs {
		vals = append(vals, *ref)
	}
	return append(vals, w.TotalScore.Float64())
}

func scanWorkload(row pgx.Row) (*WorkloadRecord, error) {
	var w WorkloadRecord
	var total float64
	dest := []interface{}{&w.ID, &w.PatientID, &w.UserID}
	for _, ref := range w.Refs() {
		dest = append(dest, ref)
	}
	dest = append(dest, &total, &w.CreatedAt, &w.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	w.TotalScore = scoring.PercentFromFloat(total)
	return &w, nil
}

func (r *workloadRepoPG) Create(ctx context.Context, w *WorkloadRecord) error {
	w.ID = uuid.New()
	args := append([]interface{}{w.ID, w.PatientID, w.UserID}, workloadValues(w)...)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO workload_record (id, patient_id, user_id, `+strings.Join(workloadValueCols, ", ")+`)
		VALUES (`+placeholders(1, len(args))+`)
		RETURNING created_at, updated_at`, args...).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *workloadRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*WorkloadRecord, error) {
	return scanWorkload(r.conn(ctx).QueryRow(ctx, `SELECT `+workloadCols+` FROM workload_record WHERE id = $1`, id))
}

func (r *workloadRepoPG) Update(ctx context.Context, w *WorkloadRecord) error {
	args := append([]interface{}{w.ID}, workloadValues(w)...)
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE workload_record SET `+assignments(workloadValueCols, 2)+`, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`, args...).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *workloadRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM workload_record WHERE id = $1`, id))
}

func (r *workloadRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*WorkloadRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM workload_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+workloadCols+` FROM workload_record WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	items, err := collect(rows, err, scanWorkload)
	return items, total, err
}

func (r *workloadRepoPG) ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*WorkloadRecord, error) {
	return listAfter(ctx, r.conn(ctx), "workload_record", workloadCols, scanWorkload, patientID, after, limit)
}

func (r *workloadRepoPG) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*WorkloadRecord, error) {
	return scanWorkload(r.conn(ctx).QueryRow(ctx, `SELECT `+workloadCols+` FROM workload_record WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT 1`, patientID))
}

// =========== Categorization Repository ===========

type categorizationRepoPG struct{ pool *pgxpool.Pool }

func NewCategorizationRepoPG(pool *pgxpool.Pool) CategorizationRepository {
	return &categorizationRepoPG{pool: pool}
}

func (r *categorizationRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const categorizationCols = `id, patient_id, user_id, patron_respiratorio, asistencia_ventilatoria,
	escala_conciencia, secreciones, nivel_asistencia, puntaje_total, complejidad, carga_asistencial,
	created_at, updated_at`

func scanCategorization(row pgx.Row) (*Categorization, error) {
	var c Categorization
	var complexity string
	s := &c.CategorizationScores
	err := row.Scan(&c.ID, &c.PatientID, &c.UserID,
		&s.RespiratoryPattern, &s.VentilatoryAssistance, &s.Consciousness, &s.Secretions, &s.AssistanceLevel,
		&c.TotalScore, &complexity, &c.StaffingRatio, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Complexity = scoring.Complexity(complexity)
	return &c, nil
}

func (r *categorizationRepoPG) Create(ctx context.Context, c *Categorization) error {
	c.ID = uuid.New()
	s := c.CategorizationScores
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO categorization (id, patient_id, user_id, patron_respiratorio, asistencia_ventilatoria,
			escala_conciencia, secreciones, nivel_asistencia, puntaje_total, complejidad, carga_asistencial)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.UserID,
		s.RespiratoryPattern, s.VentilatoryAssistance, s.Consciousness, s.Secretions, s.AssistanceLevel,
		c.TotalScore, string(c.Complexity), c.StaffingRatio).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *categorizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Categorization, error) {
	return scanCategorization(r.conn(ctx).QueryRow(ctx, `SELECT `+categorizationCols+` FROM categorization WHERE id = $1`, id))
}

func (r *categorizationRepoPG) Update(ctx context.Context, c *Categorization) error {
	s := c.CategorizationScores
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE categorization SET patron_respiratorio=$2, asistencia_ventilatoria=$3, escala_conciencia=$4,
			secreciones=$5, nivel_asistencia=$6, puntaje_total=$7, complejidad=$8, carga_asistencial=$9,
			updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, s.RespiratoryPattern, s.VentilatoryAssistance, s.Consciousness, s.Secretions, s.AssistanceLevel,
		c.TotalScore, string(c.Complexity), c.StaffingRatio).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *categorizationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM categorization WHERE id = $1`, id))
}

func (r *categorizationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Categorization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM categorization WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+categorizationCols+` FROM categorization WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	items, err := collect(rows, err, scanCategorization)
	return items, total, err
}

func (r *categorizationRepoPG) ListAfter(ctx context.Context, patientID uuid.UUID, after *Cursor, limit int) ([]*Categorization, error) {
	return listAfter(ctx, r.conn(ctx), "categorization", categorizationCols, scanCategorization, patientID, after, limit)
}

func (r *categorizationRepoPG) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Categorization, error) {
	return scanCategorization(r.conn(ctx).QueryRow(ctx, `SELECT `+categorizationCols+` FROM categorization WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT 1`, patientID))
}
