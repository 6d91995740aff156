package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Claims are the token claims the server reads. The subject identifies the
// clinician recorded as usuarioId on every score.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey switches verification to HS256. Development and tests only.
	SigningKey []byte
}

// JWTMiddleware verifies bearer tokens and stores the subject and roles on
// the request context. Without a JWKS URL or signing key the issuer's
// discovery document is consulted once, here.
func JWTMiddleware(ctx context.Context, cfg JWTConfig) (echo.MiddlewareFunc, error) {
	var keyfunc jwt.Keyfunc
	methods := []string{"RS256"}

	switch {
	case len(cfg.SigningKey) > 0:
		key := cfg.SigningKey
		keyfunc = func(*jwt.Token) (any, error) { return key, nil }
		methods = []string{"HS256"}
	case cfg.JWKSURL != "":
		keyfunc = NewKeySet(cfg.JWKSURL, DefaultKeySetTTL, nil).Keyfunc(context.Background())
	case cfg.Issuer != "":
		provider, err := Discover(ctx, cfg.Issuer, nil)
		if err != nil {
			return nil, err
		}
		keyfunc = provider.KeySet().Keyfunc(context.Background())
	default:
		return nil, errors.New("auth: one of signing key, jwks url or issuer is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(raw, claims, keyfunc)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			c.SetRequest(c.Request().WithContext(
				WithUser(c.Request().Context(), claims.Subject, claims.Roles)))
			return next(c)
		}
	}, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("invalid authorization format")
	}
	return token, nil
}

// DevAuthMiddleware lets unauthenticated requests through as dev-user with
// the given roles (admin when none are given). The X-Dev-User header picks a
// different user id.
func DevAuthMiddleware(roles ...string) echo.MiddlewareFunc {
	if len(roles) == 0 {
		roles = []string{RoleAdmin}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.Request().Header.Get("X-Dev-User")
			if uid == "" {
				uid = "dev-user"
			}
			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), uid, roles)))
			return next(c)
		}
	}
}

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
