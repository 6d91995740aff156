package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://idp.icu.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
}

// serve runs mw around a handler that captures the authenticated user.
func serve(t *testing.T, mw echo.MiddlewareFunc, header string) (string, []string, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var uid string
	var roles []string
	err := mw(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		roles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})(c)
	return uid, roles, err
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func hmacMiddleware(t *testing.T) echo.MiddlewareFunc {
	t.Helper()
	mw, err := JWTMiddleware(context.Background(), JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp.icu.test"})
	if err != nil {
		t.Fatalf("JWTMiddleware: %v", err)
	}
	return mw
}

func TestJWTMiddleware_RequiresKeySource(t *testing.T) {
	if _, err := JWTMiddleware(context.Background(), JWTConfig{}); err == nil {
		t.Fatal("expected error without any key source")
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := serve(t, hmacMiddleware(t), "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := serve(t, hmacMiddleware(t), tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims("nurse-42", RoleNurse), testSigningKey)

	uid, roles, err := serve(t, hmacMiddleware(t), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "nurse-42" {
		t.Errorf("expected nurse-42, got %q", uid)
	}
	if len(roles) != 1 || roles[0] != RoleNurse {
		t.Errorf("expected [nurse], got %v", roles)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims("u1")
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims("u1")
	wrongIssuer.Issuer = "https://evil.test"

	noSubject := validClaims("")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"no expiry", createTestToken(t, noExpiry, testSigningKey)},
		{"wrong issuer", createTestToken(t, wrongIssuer, testSigningKey)},
		{"wrong key", createTestToken(t, validClaims("u1"), []byte("another-key"))},
		{"no subject", createTestToken(t, noSubject, testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := serve(t, hmacMiddleware(t), "Bearer "+tt.token)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKSet{Keys: []JWK{rsaJWK(&key.PublicKey, "k1")}})
	}))
	defer srv.Close()

	mw, err := JWTMiddleware(context.Background(), JWTConfig{JWKSURL: srv.URL})
	if err != nil {
		t.Fatalf("JWTMiddleware: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("dr-house", RolePhysician))
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	uid, _, err := serve(t, mw, "Bearer "+signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "dr-house" {
		t.Errorf("expected dr-house, got %q", uid)
	}

	// HS256 tokens are refused when verifying against a JWKS.
	hs := createTestToken(t, validClaims("dr-house"), testSigningKey)
	_, _, err = serve(t, mw, "Bearer "+hs)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware(t *testing.T) {
	uid, roles, err := serve(t, DevAuthMiddleware(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "dev-user" {
		t.Errorf("expected dev-user, got %s", uid)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected [admin] roles, got %v", roles)
	}
}

func TestDevAuthMiddleware_HeaderAndRoles(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", "enf-7")
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware(RoleNurse)(func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := UserIDFromContext(ctx); got != "enf-7" {
			t.Errorf("expected enf-7, got %s", got)
		}
		if got := RolesFromContext(ctx); len(got) != 1 || got[0] != RoleNurse {
			t.Errorf("expected [nurse], got %v", got)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithUser(context.Background(), "user-123", []string{RolePhysician})
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
	if roles := RolesFromContext(context.Background()); roles != nil {
		t.Errorf("expected nil roles, got %v", roles)
	}
}

func rsaJWK(pub *rsa.PublicKey, kid string) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
