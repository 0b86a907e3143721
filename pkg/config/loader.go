package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PGBRIDGE_CONFIG env, ./config.yaml, /etc/pgbridge/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PGBRIDGE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/pgbridge/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("PGBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/pgbridge/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps PGBRIDGE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PGBRIDGE_DB_URI"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PGBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PGBRIDGE_DB_SCHEMAS"); v != "" {
		parts := strings.Split(v, ",")
		schemas := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				schemas = append(schemas, s)
			}
		}
		if len(schemas) > 0 {
			cfg.Database.Schemas = schemas
		}
	}
	if v := os.Getenv("PGBRIDGE_DB_ANON_ROLE"); v != "" {
		cfg.Database.AnonymousRole = v
	}
	if v := os.Getenv("PGBRIDGE_DB_MAX_ROWS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Database.MaxRows = n
		}
	}
	if v := os.Getenv("PGBRIDGE_DB_MAX_CHANGES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Database.MaxChanges = n
		}
	}
	if v := os.Getenv("PGBRIDGE_DB_POOL"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.Database.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("PGBRIDGE_DB_RELOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.ReloadInterval = d
		}
	}
	if v := os.Getenv("PGBRIDGE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PGBRIDGE_JWT_ROLE_CLAIM"); v != "" {
		cfg.Auth.RoleClaim = v
	}
	if v := os.Getenv("PGBRIDGE_JWT_AUD"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("PGBRIDGE_OPENAPI_MODE"); v != "" {
		cfg.OpenAPI.Mode = OpenAPIMode(v)
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. The value field wins when both are set.
func resolveFileReferences(cfg *Config) error {
	if cfg.Database.DSNFile != "" && cfg.Database.DSN == "" {
		val, err := readSecretFile(cfg.Database.DSNFile)
		if err != nil {
			return fmt.Errorf("database.dsn_file: %w", err)
		}
		cfg.Database.DSN = val
	}

	if cfg.Auth.JWTSecretFile != "" && cfg.Auth.JWTSecret == "" {
		val, err := readSecretFile(cfg.Auth.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt_secret_file: %w", err)
		}
		cfg.Auth.JWTSecret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
