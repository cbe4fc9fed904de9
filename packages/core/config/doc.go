// Package config handles configuration loading and management for reqly.
//
// It provides functionality for:
//   - Loading configuration from .reqly.config.json, reqly.config.json, .reqlyrc or .reqlyrc.json
//   - Default configuration values
//   - REQLY_* environment overrides (REQLY_TIMEOUT, REQLY_RELAY_URL, ...)
//   - Merging command-line overrides on top of file values
package config
