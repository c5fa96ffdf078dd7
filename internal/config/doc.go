// Package config loads, normalizes, and validates the TOML configuration that
// drives the claimlens daemon: scheduler bounds, stage retry policy, external
// adapter endpoints, cache tiers, and logging.
package config
