package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/icu/icu/internal/platform/auth"
)

// AuditEntry records who touched which patient's scores.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	RecordID   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// Audit emits one structured "patient_data_access" event per request under
// /api/v1/, after the handler has run so the status is known. Requests for
// the static scoring tables carry no patient data and are skipped.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			entry := BuildAuditEntry(c, statusOf(c, err))
			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("record_id", entry.RecordID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_data_access")

			return err
		}
	}
}

// BuildAuditEntry extracts the audit fields from a finished request.
func BuildAuditEntry(c echo.Context, status int) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)

	entry := AuditEntry{
		UserID:     auth.UserIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		Action:     httpMethodToAction(req.Method),
		IPAddress:  c.RealIP(),
		Path:       req.URL.Path,
		Method:     req.Method,
		Timestamp:  time.Now().UTC(),
		RequestID:  rid,
		StatusCode: status,
	}
	entry.Resource, entry.PatientID, entry.RecordID = parseScorePath(req.URL.Path)
	return entry
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") && !strings.HasPrefix(path, "/api/v1/scoring/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// parseScorePath understands the two route shapes:
//
//	/api/v1/patients/<patient>/<resource>[/...]
//	/api/v1/<resource>/<record>
func parseScorePath(path string) (resource, patientID, recordID string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", "", ""
	}
	if segments[0] == "patients" {
		if len(segments) > 1 && isUUID(segments[1]) {
			patientID = segments[1]
		}
		resource = "patients"
		if len(segments) > 2 {
			resource = strings.Join(segments[2:], "/")
		}
		return resource, patientID, ""
	}
	resource = segments[0]
	if len(segments) > 1 && isUUID(segments[1]) {
		recordID = segments[1]
	}
	return resource, "", recordID
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
