package auth

import (
	"context"
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

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, authHeader string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return mw(handler)(c)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "", okHandler)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_OptionalAllowsAnonymous(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Optional: true}

	var uid string
	err := runMiddleware(t, JWTMiddleware(cfg), "", func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != AnonymousUser {
		t.Errorf("expected %q, got %q", AnonymousUser, uid)
	}
}

func TestJWTMiddleware_OptionalStillRejectsBadToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Optional: true}
	err := runMiddleware(t, JWTMiddleware(cfg), "Bearer not-a-jwt", okHandler)
	expectUnauthorized(t, err)
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
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header, okHandler)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "supervisor-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{"supervisor", "meal-officer"},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	var handlerCalled bool
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, func(c echo.Context) error {
		handlerCalled = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "supervisor-7" {
			t.Errorf("expected user_id=supervisor-7, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != "supervisor" || roles[1] != "meal-officer" {
			t.Errorf("expected roles=[supervisor meal-officer], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, okHandler)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tokenStr := createTestToken(t, claims, []byte("some-other-secret-key-entirely"))

	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, okHandler)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "chw-monitor"}
	tokenStr, err := NewToken(JWTConfig{SigningKey: testSigningKey, Issuer: "someone-else"}, "user-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	err = runMiddleware(t, JWTMiddleware(cfg), "Bearer "+tokenStr, okHandler)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tokenStr := createTestToken(t, claims, testSigningKey)

	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, okHandler)
	expectUnauthorized(t, err)
}

func TestNewToken_RoundTrip(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "chw-monitor", Audience: "chw-api"}
	tokenStr, err := NewToken(cfg, "meal-officer-1", []string{"meal-officer"}, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	var uid string
	err = runMiddleware(t, JWTMiddleware(cfg), "Bearer "+tokenStr, func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "meal-officer-1" {
		t.Errorf("expected meal-officer-1, got %q", uid)
	}
}

func TestNewToken_ClaimSet(t *testing.T) {
	tokenStr, err := NewToken(JWTConfig{SigningKey: testSigningKey}, "chw-lead", []string{"supervisor"}, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	payload := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenStr, payload, func(*jwt.Token) (interface{}, error) { return testSigningKey, nil }); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, key := range []string{"sub", "iat", "exp", "roles"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("expected claim %q", key)
		}
	}
	for key := range payload {
		switch key {
		case "sub", "iat", "exp", "roles":
		default:
			t.Errorf("unexpected claim %q", key)
		}
	}
}

func TestNewToken_RequiresKey(t *testing.T) {
	if _, err := NewToken(JWTConfig{}, "user", nil, time.Hour); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestDevAuthMiddleware_WithDefaults(t *testing.T) {
	var handlerCalled bool
	err := runMiddleware(t, DevAuthMiddleware(), "", func(c echo.Context) error {
		handlerCalled = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "supervisor" {
			t.Errorf("expected roles=[supervisor], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if uid := UserIDFromContext(ctx); uid != "" {
		t.Errorf("expected empty user id, got %q", uid)
	}
	if roles := RolesFromContext(ctx); roles != nil {
		t.Errorf("expected nil roles, got %v", roles)
	}

	ctx = WithIdentity(ctx, "u1", []string{"supervisor"})
	if UserIDFromContext(ctx) != "u1" {
		t.Error("expected identity to round-trip through context")
	}
}

func TestJWTMiddleware_PublicPathSkipsValidation(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer stale")
	c := e.NewContext(req, httptest.NewRecorder())

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c); err != nil {
		t.Fatalf("expected /health to bypass token validation, got %v", err)
	}
}
