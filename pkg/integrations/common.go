package integrations

import (
	"errors"
	"time"
)

// DefaultTimeout bounds a single index request.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when the index has no entry for a crate.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)
