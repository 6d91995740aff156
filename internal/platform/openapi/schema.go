package openapi

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType      = reflect.TypeOf(time.Time{})
	uuidType      = reflect.TypeOf(uuid.UUID{})
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// schemaOf returns the schema for v's type. Named structs are added to defs
// and referenced.
func schemaOf(v interface{}, defs map[string]interface{}) map[string]interface{} {
	return typeSchema(reflect.TypeOf(v), defs)
}

func typeSchema(t reflect.Type, defs map[string]interface{}) map[string]interface{} {
	if t == nil {
		return map[string]interface{}{}
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return map[string]interface{}{"type": "string", "format": "date-time"}
	case uuidType:
		return map[string]interface{}{"type": "string", "format": "uuid"}
	}

	switch t.Kind() {
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// Fixed-point types marshal themselves as decimals.
		if t.Implements(marshalerType) {
			return map[string]interface{}{"type": "number"}
		}
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": typeSchema(t.Elem(), defs)}
	case reflect.Map:
		return map[string]interface{}{"type": "object", "additionalProperties": typeSchema(t.Elem(), defs)}
	case reflect.Struct:
		name := t.Name()
		if name == "" {
			return structSchema(t, defs)
		}
		if _, ok := defs[name]; !ok {
			defs[name] = map[string]interface{}{} // breaks cycles
			defs[name] = structSchema(t, defs)
		}
		return map[string]interface{}{"$ref": "#/components/schemas/" + name}
	}
	return map[string]interface{}{}
}

func structSchema(t reflect.Type, defs map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{})
	var required []string
	collectFields(t, defs, props, &required)

	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// collectFields follows encoding/json: untagged embedded structs are
// flattened into the parent.
func collectFields(t reflect.Type, defs, props map[string]interface{}, required *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, defs, props, required)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}

		schema := typeSchema(f.Type, defs)
		if f.Type.Kind() == reflect.Ptr {
			if _, isRef := schema["$ref"]; isRef {
				schema = map[string]interface{}{
					"allOf":    []interface{}{schema},
					"nullable": true,
				}
			} else {
				schema["nullable"] = true
			}
		}
		props[name] = schema

		if !strings.Contains(opts, "omitempty") && f.Type.Kind() != reflect.Ptr {
			*required = append(*required, name)
		}
	}
}
