package domain

import "errors"

// Validation errors surfaced by domain-level Validate methods. These
// are sentinel values so callers (and apperr) can match with
// errors.Is rather than string comparison.
var (
	// ErrInvalidAuthTypeForServer is returned when a configuration's
	// AuthType is not among its server's declared auth_configs.
	ErrInvalidAuthTypeForServer = errors.New("domain: configuration auth_type not supported by server")

	// ErrAllToolsEnabledConflict is returned when a configuration sets
	// both AllToolsEnabled and a non-empty EnabledTools list.
	ErrAllToolsEnabledConflict = errors.New("domain: all_tools_enabled and enabled_tools are mutually exclusive")

	// ErrBundleKeyCollision signals the (practically unreachable)
	// generated bundle_key collision case.
	ErrBundleKeyCollision = errors.New("domain: bundle_key collision")

	// ErrSessionExpired is returned when a caller resolves an
	// MCPSession past its idle TTL or after deletion.
	ErrSessionExpired = errors.New("domain: session expired")
)
