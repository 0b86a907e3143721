// Package config provides unified configuration for the pgbridge gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (PGBRIDGE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the pgbridge gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	OpenAPI       OpenAPIConfig       `yaml:"openapi"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 3000
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 60s
	MaxBodySize  int64         `yaml:"max_body_size"` // default: 10 MiB
}

// DatabaseConfig holds connection-pool and request-shaping settings.
type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	DSNFile string `yaml:"dsn_file"` // _file variant for dsn

	MaxConns        int32         `yaml:"max_conns"`         // default: 10
	MinConns        int32         `yaml:"min_conns"`         // default: 0
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"` // default: 1h

	// Schemas lists the database schemas exposed over HTTP; the first one
	// is the default for unqualified targets.
	Schemas []string `yaml:"schemas"` // default: ["public"]

	// AnonymousRole is the role assumed when no JWT is presented. Requests
	// running as any other role use unprepared statements.
	AnonymousRole string `yaml:"anonymous_role"` // default: "web_anon"

	// MaxRows caps the rows a single read returns; also the threshold below
	// which count=estimated upgrades to an exact count. 0 disables the cap.
	MaxRows int64 `yaml:"max_rows"`

	// MaxChanges caps the rows a single update or delete may touch.
	// 0 disables the check.
	MaxChanges int64 `yaml:"max_changes"`

	// TxRollbackAll rolls back every authenticated transaction regardless
	// of outcome. Meant for read-your-writes test deployments.
	TxRollbackAll bool `yaml:"tx_rollback_all"`

	// ReloadInterval is the schema cache refresh period.
	ReloadInterval time.Duration `yaml:"reload_interval"` // default: 10m

	// ReloadChannel is the NOTIFY channel that wakes the schema reloader.
	ReloadChannel string `yaml:"reload_channel"` // default: "pgbridge"
}

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	// JWTSecret is the HS256 shared secret. Empty disables JWT auth; every
	// request then runs as the anonymous role.
	JWTSecret     string `yaml:"jwt_secret"`
	JWTSecretFile string `yaml:"jwt_secret_file"` // _file variant for jwt_secret

	// RoleClaim is the claim carrying the database role. Default: "role".
	RoleClaim string `yaml:"role_claim"`

	// Audience, when set, is validated against the aud claim.
	Audience string `yaml:"audience"`
}

// OpenAPIMode selects how the schema document endpoint behaves.
type OpenAPIMode string

const (
	OpenAPIFollowPrivileges OpenAPIMode = "follow-privileges"
	OpenAPIIgnorePrivileges OpenAPIMode = "ignore-privileges"
	OpenAPIDisabled         OpenAPIMode = "disabled"
)

// OpenAPIConfig holds schema document generation settings.
type OpenAPIConfig struct {
	Mode OpenAPIMode `yaml:"mode"` // default: follow-privileges
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodySize:  10 << 20,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			Schemas:         []string{"public"},
			AnonymousRole:   "web_anon",
			ReloadInterval:  10 * time.Minute,
			ReloadChannel:   "pgbridge",
		},
		Auth: AuthConfig{
			RoleClaim: "role",
		},
		OpenAPI: OpenAPIConfig{
			Mode: OpenAPIFollowPrivileges,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// DefaultSchema returns the first exposed schema.
func (c *Config) DefaultSchema() string {
	if len(c.Database.Schemas) == 0 {
		return "public"
	}
	return c.Database.Schemas[0]
}
