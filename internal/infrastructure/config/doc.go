// Package config handles loading and validating graylogic-db configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Database passwords should be set via GRAYLOGIC_DATABASE_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg.Configure(cfg.Database.DSN, cfg.Database.Username, cfg.Database.Password)
package config
