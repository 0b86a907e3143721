// Package auth resolves the caller's database role from a bearer JWT. The
// resolved role and raw claims travel with the request: the role is assumed
// inside the transaction via set_config, and the claims are exposed to SQL
// as request.jwt.claims.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
)

// Resolver validates bearer tokens and maps them to database roles.
type Resolver struct {
	cfg      config.AuthConfig
	anonRole string
}

// NewResolver builds a resolver; anonymousRole is assumed when no token is
// presented.
func NewResolver(cfg config.AuthConfig, anonymousRole string) *Resolver {
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	return &Resolver{cfg: cfg, anonRole: anonymousRole}
}

// Anonymous reports whether the resolved role is the configured anonymous
// role. Non-anonymous callers get unprepared statements and, when so
// configured, automatic rollback.
func (r *Resolver) Anonymous(res api.AuthResult) bool {
	return res.Role == r.anonRole
}

// Resolve inspects the Authorization header. Outcomes:
//   - no header / not a Bearer scheme: the anonymous role, no claims
//   - valid token: role from the configured claim (anonymous role when the
//     claim is absent), claims serialized for SQL
//   - anything else: a 401-class error
func (r *Resolver) Resolve(req *http.Request) (api.AuthResult, error) {
	header := req.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return api.AuthResult{Role: r.anonRole}, nil
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		return api.AuthResult{}, api.NewJWTError("empty bearer token")
	}

	if r.cfg.JWTSecret == "" {
		return api.AuthResult{}, api.NewJWTError("server lacks JWT secret, cannot validate token")
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(r.cfg.JWTSecret), nil
	}, r.parserOptions()...)
	if err != nil {
		return api.AuthResult{}, api.NewJWTError("invalid JWT: " + err.Error())
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return api.AuthResult{}, api.NewJWTError("invalid JWT claims")
	}

	role := claimString(claims, r.cfg.RoleClaim)
	if role == "" {
		role = r.anonRole
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return api.AuthResult{}, api.NewJWTError("unserializable JWT claims")
	}

	return api.AuthResult{Role: role, Claims: claimsJSON}, nil
}

// parserOptions builds JWT parser options based on the configuration.
func (r *Resolver) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if r.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(r.cfg.Audience))
	}
	return opts
}

// claimString extracts a string value from JWT claims. Returns empty string
// if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}
