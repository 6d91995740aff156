package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/icu/icu/internal/platform/auth"
)

const (
	patientID = "7d7f2a4e-0c52-4d55-9a6e-0b8a1f3e2c11"
	recordID  = "c1e0d7b2-56a4-4f7e-8f1c-2a9b3d4e5f60"
)

// logLines decodes every JSON line zerolog wrote to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return nil
	})(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("expected a fresh uuid, got %q", got)
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		level   string
		status  float64
	}{
		{"ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, "info", 200},
		{"unprocessable", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "bad input")
		}, "warn", 422},
		{"plain error", func(c echo.Context) error { return context.Canceled }, "error", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/severity/x", nil)
			req = req.WithContext(auth.WithUser(req.Context(), "dr-1", nil))
			c := e.NewContext(req, httptest.NewRecorder())
			c.Set("request_id", "req-1")

			_ = Logger(zerolog.New(&buf))(tt.handler)(c)

			lines := logLines(t, &buf)
			if len(lines) != 1 {
				t.Fatalf("expected 1 log line, got %d", len(lines))
			}
			l := lines[0]
			if l["level"] != tt.level {
				t.Errorf("expected level %s, got %v", tt.level, l["level"])
			}
			if l["status"] != tt.status {
				t.Errorf("expected status %v, got %v", tt.status, l["status"])
			}
			if l["request_id"] != "req-1" || l["user_id"] != "dr-1" {
				t.Errorf("missing request fields: %v", l)
			}
		})
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	lines := logLines(t, &buf)
	if len(lines) != 1 || lines[0]["panic"] != "test panic" {
		t.Errorf("expected panic to be logged, got %v", lines)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_LogsPatientAccess(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/"+patientID+"/severity", nil)
	req = req.WithContext(auth.WithUser(req.Context(), "nurse-9", []string{auth.RoleNurse}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	err := Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := logLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	l := lines[0]
	want := map[string]any{
		"message":    "patient_data_access",
		"type":       "audit",
		"user_id":    "nurse-9",
		"patient_id": patientID,
		"resource":   "severity",
		"action":     "create",
		"request_id": "req-123",
		"status":     float64(201),
	}
	for k, v := range want {
		if l[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, l[k])
		}
	}
}

func TestAudit_SkipsTablesAndOtherPaths(t *testing.T) {
	for _, path := range []string{"/api/v1/scoring/tables", "/health", "/api/v1/scoring/severity/preview"} {
		var buf bytes.Buffer
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		_ = Audit(zerolog.New(&buf))(func(c echo.Context) error { return nil })(c)
		if buf.Len() != 0 {
			t.Errorf("%s: expected no audit line, got %s", path, buf.String())
		}
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/v1/workload/"+recordID, nil), httptest.NewRecorder())

	_ = Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})(c)

	l := logLines(t, &buf)[0]
	if l["status"] != float64(404) || l["action"] != "delete" || l["record_id"] != recordID {
		t.Errorf("unexpected audit entry %v", l)
	}
}

func TestParseScorePath(t *testing.T) {
	tests := []struct {
		path                         string
		resource, patient, record string
	}{
		{"/api/v1/patients/" + patientID + "/workload", "workload", patientID, ""},
		{"/api/v1/patients/" + patientID + "/scores/summary", "scores/summary", patientID, ""},
		{"/api/v1/patients/not-a-uuid/severity", "severity", "", ""},
		{"/api/v1/categorization/" + recordID, "categorization", "", recordID},
		{"/api/v1/severity", "severity", "", ""},
		{"/api/v1/", "unknown", "", ""},
	}
	for _, tt := range tests {
		r, p, id := parseScorePath(tt.path)
		if r != tt.resource || p != tt.patient || id != tt.record {
			t.Errorf("parseScorePath(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.path, r, p, id, tt.resource, tt.patient, tt.record)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	for _, hsts := range []bool{false, true} {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		_ = SecurityHeaders(hsts)(func(c echo.Context) error { return nil })(c)

		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("expected nosniff")
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("expected no-store")
		}
		if got := rec.Header().Get("Strict-Transport-Security") != ""; got != hsts {
			t.Errorf("hsts=%v but header present=%v", hsts, got)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/severity/x", nil), httptest.NewRecorder())
	err := RequestTimeout(10*time.Millisecond, time.Minute)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/p/scores/export", nil), httptest.NewRecorder())
	err = RequestTimeout(time.Millisecond, time.Minute)(func(c echo.Context) error {
		deadline, ok := c.Request().Context().Deadline()
		if !ok || time.Until(deadline) < 30*time.Second {
			t.Errorf("expected the export timeout, deadline in %v", time.Until(deadline))
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
