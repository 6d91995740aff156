package assessment

import (
	"net/http"

	"github.com/icu/icu/internal/platform/openapi"
	"github.com/icu/icu/internal/scoring"
)

// Operations documents every route RegisterRoutes adds.
func (h *Handler) Operations() []openapi.Operation {
	rejected := violationBody{}
	ops := []openapi.Operation{
		{ID: "getScoringTables", Method: http.MethodGet, Path: "/scoring/tables",
			Summary: "Scoring tables, thresholds and item weights", Tag: "scoring", Response: scoring.TableCatalog{}},
		{ID: "getPatientSummary", Method: http.MethodGet, Path: "/patients/:patient_id/scores/summary",
			Summary: "Latest record of each score type", Tag: "patients", Response: PatientSummary{}},
		{ID: "exportPatientScores", Method: http.MethodGet, Path: "/patients/:patient_id/scores/export",
			Summary: "Score history as an xlsx workbook", Tag: "patients", Response: []byte{}, Produces: xlsxContentType},
	}
	ops = append(ops, scoreOperations("severity", "Severity", &SeverityEvaluation{}, rejected)...)
	ops = append(ops, scoreOperations("workload", "Workload", &WorkloadRecord{}, rejected)...)
	ops = append(ops, scoreOperations("categorization", "Categorization", &Categorization{}, rejected)...)
	return ops
}

func scoreOperations(segment, name string, model, rejected interface{}) []openapi.Operation {
	return []openapi.Operation{
		{ID: "preview" + name, Method: http.MethodPost, Path: "/scoring/" + segment + "/preview",
			Summary: "Compute a " + segment + " score without saving it", Tag: segment,
			Request: model, Response: model, Rejection: rejected},
		{ID: "list" + name, Method: http.MethodGet, Path: "/patients/:patient_id/" + segment,
			Summary: "List " + segment + " records for a patient, newest first", Tag: segment,
			Response: model, Paged: true},
		{ID: "create" + name, Method: http.MethodPost, Path: "/patients/:patient_id/" + segment,
			Summary: "Record a " + segment + " score", Tag: segment,
			Request: model, Response: model, Rejection: rejected, Status: http.StatusCreated},
		{ID: "get" + name, Method: http.MethodGet, Path: "/" + segment + "/:id",
			Summary: "Read a " + segment + " record", Tag: segment, Response: model},
		{ID: "update" + name, Method: http.MethodPut, Path: "/" + segment + "/:id",
			Summary: "Replace a " + segment + " record and recompute it", Tag: segment,
			Request: model, Response: model, Rejection: rejected},
		{ID: "delete" + name, Method: http.MethodDelete, Path: "/" + segment + "/:id",
			Summary: "Delete a " + segment + " record", Tag: segment, Status: http.StatusNoContent},
	}
}
