// Package config loads, normalizes, and validates spinepipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the batch environment variables
// PATH_DATA, PATH_OUTPUT, PATH_DERIVATIVES, PATH_RESULTS, PATH_QC, and SCT_DIR
// as fallbacks for empty fields. The Config type centralizes every knob the
// driver needs so that no other package reads the environment.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
