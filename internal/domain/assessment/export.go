package assessment

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/icu/icu/internal/scoring"
)

const exportPageSize = 500

const (
	SheetSeverity       = "Severidad"
	SheetWorkload       = "Carga de trabajo"
	SheetCategorization = "Categorizacion"
)

// PatientHistory is every record of a patient, newest first per type.
type PatientHistory struct {
	PatientID       uuid.UUID
	Severity        []*SeverityEvaluation
	Workload        []*WorkloadRecord
	Categorizations []*Categorization
}

// listAll walks every page with a keyset cursor, so records written while
// the export runs cannot repeat or displace rows already read.
func listAll[T any](ctx context.Context, list func(context.Context, uuid.UUID, *Cursor, int) ([]*T, error),
	cursor func(*T) Cursor, patientID uuid.UUID, pageSize int) ([]*T, error) {
	var (
		all   []*T
		after *Cursor
	)
	for {
		items, err := list(ctx, patientID, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
		c := cursor(items[len(items)-1])
		after = &c
	}
}

func (e *SeverityEvaluation) cursor() Cursor { return Cursor{CreatedAt: e.CreatedAt, ID: e.ID} }
func (w *WorkloadRecord) cursor() Cursor     { return Cursor{CreatedAt: w.CreatedAt, ID: w.ID} }
func (c *Categorization) cursor() Cursor     { return Cursor{CreatedAt: c.CreatedAt, ID: c.ID} }

// History loads all three record types concurrently.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) (*PatientHistory, error) {
	h := &PatientHistory{PatientID: patientID}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		h.Severity, err = listAll(ctx, s.severity.ListAfter, (*SeverityEvaluation).cursor, patientID, exportPageSize)
		return err
	})
	g.Go(func() (err error) {
		h.Workload, err = listAll(ctx, s.workload.ListAfter, (*WorkloadRecord).cursor, patientID, exportPageSize)
		return err
	})
	g.Go(func() (err error) {
		h.Categorizations, err = listAll(ctx, s.categorizations.ListAfter, (*Categorization).cursor, patientID, exportPageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return h, nil
}

// Export writes the patient's history as an XLSX workbook to w.
func (s *Service) Export(ctx context.Context, patientID uuid.UUID, w io.Writer) error {
	h, err := s.History(ctx, patientID)
	if err != nil {
		return err
	}
	f, err := BuildWorkbook(h)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int("severity", len(h.Severity)).
		Int("workload", len(h.Workload)).
		Int("categorization", len(h.Categorizations)).
		Msg("score history exported")
	return nil
}

type sheetData struct {
	name    string
	headers []string
	rows    [][]interface{}
}

// BuildWorkbook lays out one sheet per score type with a frozen header row.
// The caller closes the returned file.
func BuildWorkbook(h *PatientHistory) (*excelize.File, error) {
	sheets := []sheetData{severitySheet(h.Severity), workloadSheet(h.Workload), categorizationSheet(h.Categorizations)}

	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sd := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sd.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sd.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", sd.name, err)
		}
		if err := writeSheet(f, sd, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sd.name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sd sheetData, headerStyle int) error {
	headers := make([]interface{}, len(sd.headers))
	for i, h := range sd.headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(sd.name, "A1", &headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(sd.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sd.name, "A1", last, headerStyle); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(sd.headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sd.name, "A", lastCol, 14); err != nil {
		return err
	}

	for i, row := range sd.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sd.name, cell, &row); err != nil {
			return err
		}
	}

	return f.SetPanes(sd.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func recordPrefix(id uuid.UUID, userID string, at time.Time) []interface{} {
	return []interface{}{at.UTC().Format(time.RFC3339), userID, id.String()}
}

var prefixHeaders = []string{"Fecha", "Usuario", "Registro"}

func severitySheet(items []*SeverityEvaluation) sheetData {
	sd := sheetData{name: SheetSeverity, headers: append([]string{}, prefixHeaders...)}
	for _, s := range (scoring.SeverityPoints{}).SubScores() {
		sd.headers = append(sd.headers, s.Name)
	}
	sd.headers = append(sd.headers, "puntajeTotal", "riesgoMortalidad", "nivelRiesgo")

	for _, e := range items {
		row := recordPrefix(e.ID, e.UserID, e.CreatedAt)
		for _, s := range e.SubScores() {
			row = append(row, s.Points)
		}
		sd.rows = append(sd.rows, append(row, e.TotalScore, e.RiskPercentage, string(e.RiskLevel)))
	}
	return sd
}

func workloadSheet(items []*WorkloadRecord) sheetData {
	sd := sheetData{name: SheetWorkload, headers: append([]string{}, prefixHeaders...)}
	sd.headers = append(sd.headers, scoring.WorkloadKeys()...)
	sd.headers = append(sd.headers, "puntuacionTotal")

	for _, w := range items {
		row := recordPrefix(w.ID, w.UserID, w.CreatedAt)
		for _, ref := range w.Refs() {
			mark := ""
			if *ref {
				mark = "X"
			}
			row = append(row, mark)
		}
		sd.rows = append(sd.rows, append(row, w.TotalScore.Float64()))
	}
	return sd
}

func categorizationSheet(items []*Categorization) sheetData {
	sd := sheetData{name: SheetCategorization, headers: append([]string{}, prefixHeaders...)}
	for _, s := range (scoring.CategorizationScores{}).SubScores() {
		sd.headers = append(sd.headers, s.Name)
	}
	sd.headers = append(sd.headers, "puntajeTotal", "complejidad", "cargaAsistencial")

	for _, c := range items {
		row := recordPrefix(c.ID, c.UserID, c.CreatedAt)
		for _, s := range c.SubScores() {
			row = append(row, s.Points)
		}
		sd.rows = append(sd.rows, append(row, c.TotalScore, string(c.Complexity), c.StaffingRatio))
	}
	return sd
}
