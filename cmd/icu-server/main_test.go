package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/icu/icu/internal/config"
	"github.com/icu/icu/internal/domain/assessment"
	"github.com/icu/icu/internal/platform/auth"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScoreSeverity_Points(t *testing.T) {
	path := writeFile(t, "sev.yaml", `
temperatura: 1
presionArterialMedia: 0
frecuenciaCardiaca: 2
frecuenciaRespiratoria: 0
oxigenacion: 0
phArterial: 0
sodioSerico: 0
potasioSerico: 0
creatininaSerica: 0
hematocrito: 0
leucocitos: 0
escalaGlasgow: 3
edad: 2
enfermedadCronica: 2
`)
	out, err := runCmd(t, "", "score", "severity", "--file", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	var res struct {
		TotalScore int    `json:"puntajeTotal"`
		Risk       string `json:"riesgoMortalidad"`
		Level      string `json:"nivelRiesgo"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.TotalScore != 10 || res.Risk != "15%" || res.Level != "Moderado" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestScoreSeverity_MissingPointsRejected(t *testing.T) {
	path := writeFile(t, "sev.yaml", "temperatura: 1\nedad: 2\n")
	out, err := runCmd(t, "", "score", "severity", "--file", path)
	if err == nil {
		t.Fatalf("expected rejection, got %s", out)
	}
	if !strings.Contains(out, `"reason": "domain_range"`) || !strings.Contains(out, `"field": "escalaGlasgow"`) {
		t.Errorf("expected missing sub-scores in output, got %s", out)
	}
	if strings.Contains(out, `"field": "edad"`) {
		t.Errorf("present sub-score reported as missing: %s", out)
	}
}

func TestScoreSeverity_Measurements(t *testing.T) {
	path := writeFile(t, "sev.yaml", `
mediciones:
  temperatura: 39.2
  presionArterialMedia: 90
  frecuenciaCardiaca: 80
  frecuenciaRespiratoria: 16
  oxigenacion: 90
  fio2: 0.21
  phArterial: 7.4
  sodioSerico: 140
  potasioSerico: 4
  creatininaSerica: 1
  hematocrito: 40
  leucocitos: 8
  escalaGlasgow: 15
  edad: 30
  enfermedadCronica: false
`)
	out, err := runCmd(t, "", "score", "severity", "-f", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"puntajeTotal": 3`) {
		t.Errorf("expected temperature 39.2 to score 3, got %s", out)
	}
}

func TestScoreWorkload_JSONFromStdin(t *testing.T) {
	out, err := runCmd(t, `{"item_1b": true, "item_9": true}`, "score", "workload", "--file", "-")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "13.50") {
		t.Errorf("expected total 13.50, got %s", out)
	}
}

func TestScoreWorkload_UnknownItemRejected(t *testing.T) {
	out, err := runCmd(t, `{"item_1b": true, "item_24": true, "item_9x": false}`, "score", "workload", "--file", "-")
	if err == nil {
		t.Fatalf("expected rejection, got %s", out)
	}
	for _, want := range []string{`"reason": "domain_range"`, `"field": "item_24"`, `"field": "item_9x"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %s", want, out)
		}
	}
}

func TestScoreWorkload_Rejected(t *testing.T) {
	path := writeFile(t, "nas.yaml", "item_4a: true\nitem_4b: true\n")
	out, err := runCmd(t, "", "score", "workload", "--file", path)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(out, `"reason": "exclusive_group"`) {
		t.Errorf("expected violations in output, got %s", out)
	}
}

func TestScoreCategorization(t *testing.T) {
	path := writeFile(t, "cat.yaml", `
patronRespiratorio: 5
asistenciaVentilatoria: 5
escalaConciencia: 1
secreciones: 1
nivelAsistencia: 1
`)
	out, err := runCmd(t, "", "score", "categorization", "--file", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"puntajeTotal": 13`) {
		t.Errorf("expected total 13, got %s", out)
	}
}

func TestScore_MissingFile(t *testing.T) {
	if _, err := runCmd(t, "", "score", "categorization", "--file", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := runCmd(t, "", "score", "categorization"); err == nil {
		t.Error("expected error without --file")
	}
}

func testServer() *echo.Echo {
	cfg := &config.Config{Env: "development", CORSOrigins: []string{"http://localhost:3000"}}
	svc := assessment.NewService(nil, nil, nil, nil, zerolog.Nop())
	return newServer(cfg, zerolog.Nop(), serverDeps{
		service: svc,
		auth:    auth.DevAuthMiddleware(),
		health: func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		},
	})
}

func TestNewServer_Routes(t *testing.T) {
	e := testServer()
	want := map[string]bool{
		"GET /health":                                     false,
		"GET /api/v1/scoring/tables":                      false,
		"POST /api/v1/scoring/severity/preview":           false,
		"POST /api/v1/patients/:patient_id/severity":      false,
		"PUT /api/v1/workload/:id":                        false,
		"DELETE /api/v1/categorization/:id":               false,
		"GET /api/v1/patients/:patient_id/scores/summary": false,
		"GET /api/v1/patients/:patient_id/scores/export":  false,
		"GET /api/v1/patients/:patient_id/categorization": false,
		"GET /api/v1/openapi.json":                        false,
		"GET /api/v1/docs":                                false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestNewServer_DocsArePublic(t *testing.T) {
	cfg := &config.Config{Env: "production"}
	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}
	}
	e := newServer(cfg, zerolog.Nop(), serverDeps{
		service: assessment.NewService(nil, nil, nil, nil, zerolog.Nop()),
		auth:    deny,
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without credentials, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"/patients/{patient_id}/severity"`) {
		t.Error("expected severity collection in the document")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scoring/tables", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected scoring routes to stay protected, got %d", rec.Code)
	}
}

func TestNewServer_Tables(t *testing.T) {
	e := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scoring/tables", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestNewServer_PreviewWithoutDatabase(t *testing.T) {
	e := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scoring/categorization/preview",
		strings.NewReader(`{"patronRespiratorio":3,"asistenciaVentilatoria":3,"escalaConciencia":3,"secreciones":3,"nivelAsistencia":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"puntajeTotal":15`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAuthMiddleware_JWTNeedsKeySource(t *testing.T) {
	cfg := &config.Config{Env: "production"}
	if _, err := authMiddleware(t.Context(), cfg); err == nil {
		t.Error("expected error without issuer, JWKS URL or key")
	}
}
