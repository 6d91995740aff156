package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Operation describes one API route.
type Operation struct {
	ID      string
	Method  string
	Path    string // echo pattern, e.g. /severity/:id
	Summary string
	Tag     string

	// Request and Response are sample values; their schemas are derived
	// from the json tags. A nil Request means no body.
	Request  interface{}
	Response interface{}

	// Rejection is the 422 body returned when the request is refused.
	Rejection interface{}

	Status   int  // success status, defaults to 200
	Paged    bool // response is a page of Response items
	Produces string
}

// Generator builds an OpenAPI 3.0 spec from registered operations.
type Generator struct {
	title   string
	version string
	baseURL string
	ops     []Operation
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL}
}

// Add registers operations in order.
func (g *Generator) Add(ops ...Operation) {
	g.ops = append(g.ops, ops...)
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	schemas := map[string]interface{}{
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
			},
		},
	}

	paths := make(map[string]interface{})
	tagSet := make(map[string]bool)

	for _, op := range g.ops {
		path, params := toOpenAPIPath(op.Path)
		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}

		parameters := make([]map[string]interface{}, 0, len(params)+2)
		for _, p := range params {
			parameters = append(parameters, map[string]interface{}{
				"name":     p,
				"in":       "path",
				"required": true,
				"schema":   map[string]string{"type": "string", "format": "uuid"},
			})
		}
		if op.Paged {
			parameters = append(parameters,
				queryParam("limit", "Page size, capped at 100"),
				queryParam("offset", "Number of items to skip"),
			)
		}

		status := op.Status
		if status == 0 {
			status = http.StatusOK
		}
		responses := map[string]interface{}{
			strconv.Itoa(status): g.buildResponse(op, status, schemas),
		}
		if len(params) > 0 || op.Request != nil {
			responses["400"] = errorResponse("Bad Request", "#/components/schemas/Error")
		}
		if len(params) > 0 && strings.Contains(op.Path, ":id") {
			responses["404"] = errorResponse("Not Found", "#/components/schemas/Error")
		}
		if op.Rejection != nil {
			responses["422"] = map[string]interface{}{
				"description": "Unprocessable Entity",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": schemaOf(op.Rejection, schemas),
					},
				},
			}
		}
		responses["401"] = errorResponse("Unauthorized", "#/components/schemas/Error")
		responses["403"] = errorResponse("Forbidden", "#/components/schemas/Error")

		entry := map[string]interface{}{
			"summary":     op.Summary,
			"operationId": op.ID,
			"responses":   responses,
		}
		if op.Tag != "" {
			entry["tags"] = []string{op.Tag}
			tagSet[op.Tag] = true
		}
		if len(parameters) > 0 {
			entry["parameters"] = parameters
		}
		if op.Request != nil {
			entry["requestBody"] = map[string]interface{}{
				"required": true,
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": schemaOf(op.Request, schemas),
					},
				},
			}
		}
		item[strings.ToLower(op.Method)] = entry
	}

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	tagObjs := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		tagObjs = append(tagObjs, map[string]string{"name": t})
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"tags":  tagObjs,
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
		"security": []map[string][]string{
			{"bearerAuth": {}},
		},
	}
}

func (g *Generator) buildResponse(op Operation, status int, schemas map[string]interface{}) map[string]interface{} {
	resp := map[string]interface{}{"description": http.StatusText(status)}
	if op.Response == nil {
		return resp
	}
	mediaType := op.Produces
	if mediaType == "" {
		mediaType = "application/json"
	}
	var schema map[string]interface{}
	switch {
	case mediaType != "application/json":
		schema = map[string]interface{}{"type": "string", "format": "binary"}
	case op.Paged:
		schema = pageSchema(schemaOf(op.Response, schemas))
	default:
		schema = schemaOf(op.Response, schemas)
	}
	resp["content"] = map[string]interface{}{
		mediaType: map[string]interface{}{"schema": schema},
	}
	return resp
}

func errorResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": schemaRef},
			},
		},
	}
}

func queryParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]string{"type": "integer"},
	}
}

// pageSchema wraps item in the paginated list envelope.
func pageSchema(item map[string]interface{}) map[string]interface{} {
	integer := map[string]interface{}{"type": "integer"}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data":            map[string]interface{}{"type": "array", "items": item},
			"total":           integer,
			"limit":           integer,
			"offset":          integer,
			"has_more":        map[string]interface{}{"type": "boolean"},
			"next_offset":     integer,
			"previous_offset": integer,
		},
		"required": []string{"data", "total", "limit", "offset", "has_more"},
	}
}

// toOpenAPIPath converts /severity/:id into /severity/{id} and returns the
// parameter names in order.
func toOpenAPIPath(path string) (string, []string) {
	segments := strings.Split(path, "/")
	var params []string
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			params = append(params, s[1:])
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

// RegisterRoutes adds the OpenAPI endpoints to the given group.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	group.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	group.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, strings.Replace(swaggerUIHTML, "{{title}}", g.title, 1))
	})
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{title}} - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`
