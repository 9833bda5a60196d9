// Package config loads, normalizes and validates mjp-export configuration.
//
// Configuration is read from a TOML file (by default
// ~/.config/mjp-export/config.toml, then ./mjp-export.toml). Every value has
// a default, so running without a file is valid. A handful of MJP_*
// environment variables override file values; see applyEnv.
package config
