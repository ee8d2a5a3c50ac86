// Package config loads, normalizes, and validates LaunchLock configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LAUNCHLOCK_MARKETPLACE_API_KEY. The Config type centralizes every knob the
// worker daemon and CLI need: queue timing, guardrail limits, gate thresholds,
// pricing markups, and marketplace credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical store modes, and clear validation errors.
package config
