// Package config loads environment-based configuration for syncd,
// including every overridable sync-engine knob.
package config
