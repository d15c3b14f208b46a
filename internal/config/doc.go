// Package config loads, normalizes, and validates hydralite configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies the deployment environment
// variables (ASSEMBLYAI_API_KEY, GROQ_API_KEY, BLUETOOTH_DIR and friends) on
// top of file values. The Config type centralizes every knob the daemon and
// CLI need, deriving the upload, processed, transcript, summary and report
// directories from a single data directory.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
