// Package config loads, normalizes, and validates Loom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LOOM_PLATFORM_API_KEY. The Config type centralizes every knob the daemon
// and CLI need, from workflow retry budgets to collaborator service
// endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
