package domain

import "errors"

var (
	// ErrProviderUnavailable covers timeouts, non-2xx responses and malformed payloads.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNotFound is an expected transient state: no pool yet, no holders yet.
	ErrNotFound = errors.New("not found")

	// ErrConfigurationMissing marks an optional provider without credentials.
	ErrConfigurationMissing = errors.New("configuration missing")
)
