package assessment

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/icu/icu/internal/platform/auth"
	"github.com/icu/icu/internal/scoring"
	"github.com/icu/icu/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: admin, physician, nurse
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/scoring/tables", h.Tables)
	read.POST("/scoring/severity/preview", h.PreviewSeverity)
	read.POST("/scoring/workload/preview", h.PreviewWorkload)
	read.POST("/scoring/categorization/preview", h.PreviewCategorization)
	read.GET("/patients/:patient_id/severity", h.ListSeverity)
	read.GET("/patients/:patient_id/workload", h.ListWorkload)
	read.GET("/patients/:patient_id/categorization", h.ListCategorizations)
	read.GET("/patients/:patient_id/scores/summary", h.Summary)
	read.GET("/patients/:patient_id/scores/export", h.Export)
	read.GET("/severity/:id", h.GetSeverity)
	read.GET("/workload/:id", h.GetWorkload)
	read.GET("/categorization/:id", h.GetCategorization)

	// Write endpoints: admin, physician, nurse
	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/patients/:patient_id/severity", h.CreateSeverity)
	write.PUT("/severity/:id", h.UpdateSeverity)
	write.DELETE("/severity/:id", h.DeleteSeverity)
	write.POST("/patients/:patient_id/workload", h.CreateWorkload)
	write.PUT("/workload/:id", h.UpdateWorkload)
	write.DELETE("/workload/:id", h.DeleteWorkload)
	write.POST("/patients/:patient_id/categorization", h.CreateCategorization)
	write.PUT("/categorization/:id", h.UpdateCategorization)
	write.DELETE("/categorization/:id", h.DeleteCategorization)
}

// violationBody is the 422 payload. echo writes messages that are not errors
// or strings as JSON unchanged.
type violationBody struct {
	Reason     scoring.Reason      `json:"reason"`
	Violations []scoring.Violation `json:"violations"`
}

func httpError(err error) error {
	if verr, ok := scoring.AsValidationError(err); ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			violationBody{Reason: verr.Reason, Violations: verr.Violations})
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func currentUser(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// bindBody decodes the request body into dst. Missing sub-scores and unknown
// workload items are left for the engine to reject.
func bindBody(c echo.Context, dst interface{}) error {
	if c.Request().ContentLength == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is required")
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

func (h *Handler) Tables(c echo.Context) error {
	return c.JSON(http.StatusOK, scoring.Catalog())
}

// -- Severity Handlers --

func (h *Handler) PreviewSeverity(c echo.Context) error {
	var e SeverityEvaluation
	if err := bindBody(c, &e); err != nil {
		return err
	}
	if err := h.svc.PreviewSeverity(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CreateSeverity(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var e SeverityEvaluation
	if err := bindBody(c, &e); err != nil {
		return err
	}
	e.PatientID = patientID
	e.UserID = currentUser(c)
	if err := h.svc.CreateSeverity(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetSeverity(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.svc.GetSeverity(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) UpdateSeverity(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var e SeverityEvaluation
	if err := bindBody(c, &e); err != nil {
		return err
	}
	e.ID = id
	e.UserID = currentUser(c)
	if err := h.svc.UpdateSeverity(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteSeverity(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSeverity(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSeverity(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSeverity(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Workload Handlers --

func (h *Handler) PreviewWorkload(c echo.Context) error {
	var w WorkloadRecord
	if err := bindBody(c, &w); err != nil {
		return err
	}
	if err := h.svc.PreviewWorkload(c.Request().Context(), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) CreateWorkload(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var w WorkloadRecord
	if err := bindBody(c, &w); err != nil {
		return err
	}
	w.PatientID = patientID
	w.UserID = currentUser(c)
	if err := h.svc.CreateWorkload(c.Request().Context(), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWorkload(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.svc.GetWorkload(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) UpdateWorkload(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var w WorkloadRecord
	if err := bindBody(c, &w); err != nil {
		return err
	}
	w.ID = id
	w.UserID = currentUser(c)
	if err := h.svc.UpdateWorkload(c.Request().Context(), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWorkload(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWorkload(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListWorkload(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWorkload(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Categorization Handlers --

func (h *Handler) PreviewCategorization(c echo.Context) error {
	var cat Categorization
	if err := bindBody(c, &cat); err != nil {
		return err
	}
	if err := h.svc.PreviewCategorization(c.Request().Context(), &cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) CreateCategorization(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var cat Categorization
	if err := bindBody(c, &cat); err != nil {
		return err
	}
	cat.PatientID = patientID
	cat.UserID = currentUser(c)
	if err := h.svc.CreateCategorization(c.Request().Context(), &cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *Handler) GetCategorization(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cat, err := h.svc.GetCategorization(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) UpdateCategorization(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var cat Categorization
	if err := bindBody(c, &cat); err != nil {
		return err
	}
	cat.ID = id
	cat.UserID = currentUser(c)
	if err := h.svc.UpdateCategorization(c.Request().Context(), &cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) DeleteCategorization(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCategorization(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListCategorizations(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCategorizations(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patient views --

func (h *Handler) Summary(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Export(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request().Context(), patientID, &buf); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="puntajes-%s.xlsx"`, patientID))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
