// Package config loads and validates the Tideflow service configuration
// from defaults, a YAML file and environment variable overrides.
package config
