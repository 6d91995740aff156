package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type fixedPoint int64

func (f fixedPoint) MarshalJSON() ([]byte, error) { return []byte("0.00"), nil }

type inner struct {
	Glasgow int `json:"glasgow"`
}

type widget struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Score     fixedPoint        `json:"score"`
	Note      *string           `json:"note,omitempty"`
	Child     *widget           `json:"child"`
	Ranges    map[string]string `json:"ranges,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Hidden    string            `json:"-"`
	inner
}

type rejection struct {
	Reason string `json:"reason"`
}

func newTestGenerator() *Generator {
	g := NewGenerator("Widget API", "1.0.0", "/api/v1")
	g.Add(
		Operation{ID: "listWidgets", Method: http.MethodGet, Path: "/owners/:owner_id/widgets",
			Summary: "List widgets", Tag: "widgets", Response: widget{}, Paged: true},
		Operation{ID: "createWidget", Method: http.MethodPost, Path: "/owners/:owner_id/widgets",
			Summary: "Create widget", Tag: "widgets", Request: widget{}, Response: widget{},
			Rejection: rejection{}, Status: http.StatusCreated},
		Operation{ID: "deleteWidget", Method: http.MethodDelete, Path: "/widgets/:id",
			Summary: "Delete widget", Tag: "widgets", Status: http.StatusNoContent},
		Operation{ID: "exportWidgets", Method: http.MethodGet, Path: "/owners/:owner_id/export",
			Summary: "Export", Tag: "export", Response: []byte{}, Produces: "application/octet-stream"},
	)
	return g
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
	info, ok := spec["info"].(map[string]interface{})
	if !ok {
		t.Fatal("expected info object")
	}
	if info["title"] != "Widget API" || info["version"] != "1.0.0" {
		t.Errorf("unexpected info %v", info)
	}
	servers, ok := spec["servers"].([]map[string]string)
	if !ok || len(servers) != 1 || servers[0]["url"] != "/api/v1" {
		t.Errorf("unexpected servers %v", spec["servers"])
	}
	tags, ok := spec["tags"].([]map[string]string)
	if !ok || len(tags) != 2 || tags[0]["name"] != "export" {
		t.Errorf("expected sorted tags, got %v", spec["tags"])
	}
}

func TestGenerateSpec_Paths(t *testing.T) {
	paths := newTestGenerator().GenerateSpec()["paths"].(map[string]interface{})

	item, ok := paths["/owners/{owner_id}/widgets"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected converted path, got keys %v", paths)
	}
	if _, ok := item["get"]; !ok {
		t.Error("expected get operation")
	}
	post, ok := item["post"].(map[string]interface{})
	if !ok {
		t.Fatal("expected post operation on the same path item")
	}
	if post["operationId"] != "createWidget" {
		t.Errorf("unexpected operationId %v", post["operationId"])
	}
	if _, ok := post["requestBody"]; !ok {
		t.Error("expected request body")
	}
	responses := post["responses"].(map[string]interface{})
	for _, code := range []string{"201", "400", "401", "403", "422"} {
		if _, ok := responses[code]; !ok {
			t.Errorf("expected %s response", code)
		}
	}
	if _, ok := responses["404"]; ok {
		t.Error("collection routes have no 404")
	}

	get := item["get"].(map[string]interface{})
	params := get["parameters"].([]map[string]interface{})
	if len(params) != 3 {
		t.Fatalf("expected path param plus limit/offset, got %d", len(params))
	}
	if params[0]["name"] != "owner_id" || params[0]["in"] != "path" {
		t.Errorf("unexpected first param %v", params[0])
	}
	if params[1]["name"] != "limit" || params[2]["name"] != "offset" {
		t.Errorf("unexpected query params %v", params[1:])
	}

	del := paths["/widgets/{id}"].(map[string]interface{})["delete"].(map[string]interface{})
	delResp := del["responses"].(map[string]interface{})
	if _, ok := delResp["404"]; !ok {
		t.Error("expected 404 for id routes")
	}
	if _, ok := delResp["204"].(map[string]interface{})["content"]; ok {
		t.Error("204 must not carry content")
	}

	export := paths["/owners/{owner_id}/export"].(map[string]interface{})["get"].(map[string]interface{})
	content := export["responses"].(map[string]interface{})["200"].(map[string]interface{})["content"].(map[string]interface{})
	if _, ok := content["application/octet-stream"]; !ok {
		t.Errorf("expected binary media type, got %v", content)
	}
}

func TestGenerateSpec_Schemas(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()
	schemas := spec["components"].(map[string]interface{})["schemas"].(map[string]interface{})

	w, ok := schemas["widget"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected widget schema, got %v", schemas)
	}
	props := w["properties"].(map[string]interface{})

	cases := map[string]string{
		"id":        "string",
		"name":      "string",
		"score":     "number",
		"createdAt": "string",
		"ranges":    "object",
		"glasgow":   "integer",
	}
	for name, typ := range cases {
		p, ok := props[name].(map[string]interface{})
		if !ok {
			t.Errorf("missing property %s", name)
			continue
		}
		if p["type"] != typ {
			t.Errorf("%s: expected %s, got %v", name, typ, p["type"])
		}
	}
	if props["id"].(map[string]interface{})["format"] != "uuid" {
		t.Error("expected uuid format")
	}
	if _, ok := props["Hidden"]; ok {
		t.Error("json:\"-\" fields must be skipped")
	}
	if _, ok := props["inner"]; ok {
		t.Error("embedded struct must be flattened")
	}
	if props["note"].(map[string]interface{})["nullable"] != true {
		t.Error("pointer fields are nullable")
	}
	child := props["child"].(map[string]interface{})
	if child["nullable"] != true || child["allOf"] == nil {
		t.Errorf("expected nullable ref for self reference, got %v", child)
	}

	required := w["required"].([]string)
	joined := strings.Join(required, ",")
	if strings.Contains(joined, "note") || strings.Contains(joined, "ranges") || strings.Contains(joined, "child") {
		t.Errorf("optional fields marked required: %v", required)
	}
	if !strings.Contains(joined, "name") || !strings.Contains(joined, "glasgow") {
		t.Errorf("expected name and glasgow required: %v", required)
	}

	if _, ok := schemas["rejection"]; !ok {
		t.Error("expected rejection schema")
	}
	if _, ok := schemas["Error"]; !ok {
		t.Error("expected Error schema")
	}
}

func TestToOpenAPIPath(t *testing.T) {
	path, params := toOpenAPIPath("/patients/:patient_id/severity/:id")
	if path != "/patients/{patient_id}/severity/{id}" {
		t.Errorf("unexpected path %s", path)
	}
	if len(params) != 2 || params[0] != "patient_id" || params[1] != "id" {
		t.Errorf("unexpected params %v", params)
	}

	path, params = toOpenAPIPath("/scoring/tables")
	if path != "/scoring/tables" || len(params) != 0 {
		t.Errorf("static path changed: %s %v", path, params)
	}
}

func TestRegisterRoutes(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var spec map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if spec["openapi"] != "3.0.3" {
		t.Errorf("unexpected openapi version %v", spec["openapi"])
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/docs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("expected HTML, got %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Widget API - Swagger UI") {
		t.Error("expected titled Swagger UI page")
	}
}
