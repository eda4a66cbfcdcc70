// Package config handles loading and validating module manager configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MQTT_BROKER_URL, SECRET_KEY, ...)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and the session secret belong in the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
