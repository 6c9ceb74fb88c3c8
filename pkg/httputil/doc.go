// Package httputil provides retry helpers for registry HTTP clients.
//
// [Retry] re-runs an operation while it fails with a [RetryableError],
// doubling the delay between attempts. Wrap transient failures (network
// errors, 5xx and 429 responses) so they are retried; anything else is
// returned at once.
package httputil
