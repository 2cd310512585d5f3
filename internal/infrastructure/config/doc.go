// Package config handles loading and validating the camera gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading account credentials from a .env file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Account credentials and the session secret should be set via environment variables
//   - The .env file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
