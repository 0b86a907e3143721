package auth

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
)

const testSecret = "reallyreallyreallyreallyverysafe"

func signToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newResolver(cfg config.AuthConfig) *Resolver {
	return NewResolver(cfg, "web_anon")
}

func TestResolveNoHeaderIsAnonymous(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/films", nil)

	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Role != "web_anon" {
		t.Errorf("Role = %q, want web_anon", res.Role)
	}
	if !r.Anonymous(res) {
		t.Error("Anonymous() = false for anonymous result")
	}
}

func TestResolveValidToken(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{
		"role": "author",
		"sub":  "jdoe",
	}))

	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Role != "author" {
		t.Errorf("Role = %q, want author", res.Role)
	}
	if r.Anonymous(res) {
		t.Error("Anonymous() = true for authenticated result")
	}

	var claims map[string]any
	if err := json.Unmarshal(res.Claims, &claims); err != nil {
		t.Fatalf("claims not valid JSON: %v", err)
	}
	if claims["sub"] != "jdoe" {
		t.Errorf("claims[sub] = %v, want jdoe", claims["sub"])
	}
}

func TestResolveBadSignature(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret-wrong-secret-wrong!", jwtlib.MapClaims{"role": "author"}))

	_, err := r.Resolve(req)
	assertJWTError(t, err)
}

func TestResolveExpiredToken(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{
		"role": "author",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	}))

	_, err := r.Resolve(req)
	assertJWTError(t, err)
}

func TestResolveMissingRoleClaimFallsBack(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{"sub": "jdoe"}))

	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Role != "web_anon" {
		t.Errorf("Role = %q, want web_anon fallback", res.Role)
	}
}

func TestResolveCustomRoleClaim(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret, RoleClaim: "db_role"})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{"db_role": "editor"}))

	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Role != "editor" {
		t.Errorf("Role = %q, want editor", res.Role)
	}
}

func TestResolveAudience(t *testing.T) {
	r := newResolver(config.AuthConfig{JWTSecret: testSecret, Audience: "pgbridge"})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{
		"role": "author",
		"aud":  "someone-else",
	}))

	_, err := r.Resolve(req)
	assertJWTError(t, err)
}

func TestResolveTokenWithoutConfiguredSecret(t *testing.T) {
	r := newResolver(config.AuthConfig{})
	req := httptest.NewRequest("GET", "/films", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtlib.MapClaims{"role": "author"}))

	_, err := r.Resolve(req)
	assertJWTError(t, err)
}

func assertJWTError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*api.Error)
	if !ok {
		t.Fatalf("error type = %T, want *api.Error", err)
	}
	if apiErr.Kind != api.KindJWT {
		t.Errorf("Kind = %v, want KindJWT", apiErr.Kind)
	}
}
