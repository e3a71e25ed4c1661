// Package config loads, normalizes, and validates apkharvest configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the APKHARVEST_ORIGIN environment
// fallback. The Config type centralizes every knob a harvest run needs: where
// to look for archives and loose files, where categorized output lands, how
// many workers each pool may use, and which extensions and keywords drive
// classification.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, lower-cased extensions, and clear validation errors.
package config
