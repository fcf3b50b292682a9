package config

import "errors"

// Validation errors returned by [StructuredConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidAPIConfigs indicates invalid remote service settings
	// (for example, missing API key or zero request timeout).
	ErrInvalidAPIConfigs = errors.New("invalid api configuration")
	// ErrInvalidStorageConfigs indicates invalid storage settings
	// (for example, unsupported engine or empty DSN).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
	// ErrInvalidSyncConfigs indicates invalid update cycle settings
	// (for example, zero interval or an unparseable threat list name).
	ErrInvalidSyncConfigs = errors.New("invalid sync configuration")
)
