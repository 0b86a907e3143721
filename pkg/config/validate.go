package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.DSN == "" && c.Database.DSNFile == "" {
		errs = append(errs, fmt.Errorf("database.dsn or database.dsn_file is required"))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if len(c.Database.Schemas) == 0 {
		errs = append(errs, fmt.Errorf("database.schemas must list at least one schema"))
	}

	if c.Database.AnonymousRole == "" {
		errs = append(errs, fmt.Errorf("database.anonymous_role is required"))
	}

	if c.Database.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("database.max_rows must be >= 0, got %d", c.Database.MaxRows))
	}

	if c.Database.MaxChanges < 0 {
		errs = append(errs, fmt.Errorf("database.max_changes must be >= 0, got %d", c.Database.MaxChanges))
	}

	switch c.OpenAPI.Mode {
	case OpenAPIFollowPrivileges, OpenAPIIgnorePrivileges, OpenAPIDisabled:
		// valid
	default:
		errs = append(errs, fmt.Errorf("openapi.mode must be %q, %q, or %q, got %q",
			OpenAPIFollowPrivileges, OpenAPIIgnorePrivileges, OpenAPIDisabled, c.OpenAPI.Mode))
	}

	return errors.Join(errs...)
}
