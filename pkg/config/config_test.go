package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Database.AnonymousRole != "web_anon" {
		t.Errorf("AnonymousRole = %q, want web_anon", cfg.Database.AnonymousRole)
	}
	if got := cfg.DefaultSchema(); got != "public" {
		t.Errorf("DefaultSchema() = %q, want public", got)
	}
	if cfg.OpenAPI.Mode != OpenAPIFollowPrivileges {
		t.Errorf("OpenAPI.Mode = %q, want follow-privileges", cfg.OpenAPI.Mode)
	}
	if cfg.Database.ReloadChannel != "pgbridge" {
		t.Errorf("ReloadChannel = %q, want pgbridge", cfg.Database.ReloadChannel)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 8081
database:
  dsn: postgres://app@localhost/app
  schemas: [api, extra]
  max_changes: 100
  reload_interval: 1m
auth:
  jwt_secret: reallyreallysecret
  role_claim: db_role
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if got := cfg.DefaultSchema(); got != "api" {
		t.Errorf("DefaultSchema() = %q, want api", got)
	}
	if cfg.Database.MaxChanges != 100 {
		t.Errorf("MaxChanges = %d, want 100", cfg.Database.MaxChanges)
	}
	if cfg.Database.ReloadInterval != time.Minute {
		t.Errorf("ReloadInterval = %v, want 1m", cfg.Database.ReloadInterval)
	}
	if cfg.Auth.RoleClaim != "db_role" {
		t.Errorf("RoleClaim = %q, want db_role", cfg.Auth.RoleClaim)
	}
	// Defaults survive for fields the file omits.
	if cfg.Database.AnonymousRole != "web_anon" {
		t.Errorf("AnonymousRole = %q, want default web_anon", cfg.Database.AnonymousRole)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PGBRIDGE_DB_URI", "postgres://env@localhost/envdb")
	t.Setenv("PGBRIDGE_PORT", "9000")
	t.Setenv("PGBRIDGE_DB_SCHEMAS", "one, two")
	t.Setenv("PGBRIDGE_DB_MAX_ROWS", "500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.DSN != "postgres://env@localhost/envdb" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Database.Schemas) != 2 || cfg.Database.Schemas[1] != "two" {
		t.Errorf("Schemas = %v", cfg.Database.Schemas)
	}
	if cfg.Database.MaxRows != 500 {
		t.Errorf("MaxRows = %d, want 500", cfg.Database.MaxRows)
	}
}

func TestSecretFileResolution(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "jwt-secret")
	if err := os.WriteFile(secretPath, []byte("  sekrit\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	cfg.Database.DSN = "postgres://x@localhost/x"
	cfg.Auth.JWTSecretFile = secretPath

	if err := resolveFileReferences(&cfg); err != nil {
		t.Fatalf("resolveFileReferences() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "sekrit" {
		t.Errorf("JWTSecret = %q, want trimmed file content", cfg.Auth.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) { c.Database.DSN = "postgres://x" }, false},
		{"missing dsn", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Database.DSN = "x"; c.Server.Port = 0 }, true},
		{"no schemas", func(c *Config) { c.Database.DSN = "x"; c.Database.Schemas = nil }, true},
		{"negative max rows", func(c *Config) { c.Database.DSN = "x"; c.Database.MaxRows = -1 }, true},
		{"bad openapi mode", func(c *Config) { c.Database.DSN = "x"; c.OpenAPI.Mode = "nope" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
