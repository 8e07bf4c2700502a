// Package config loads, validates, and normalizes neuravox configuration
// from TOML files.
package config
