// ABOUTME: Package config loads the switchboard YAML configuration.
// ABOUTME: Env-var expansion, duration parsing, defaults, validation.

// Package config parses the YAML configuration file. Values in the form
// ${VAR_NAME} are expanded from the environment before parsing; duration
// fields accept Go duration strings ("5m", "30s"). Missing fields fall
// back to workable local defaults.
package config
