// Package permanent tags dispatch failures that retrying cannot fix:
// unconfigured channels, rejected payloads, unknown actions. The notify
// retry loop gives up on marked errors immediately and the queue worker
// dead-letters them instead of redelivering.
package permanent

import "errors"

// Error wraps a non-retryable send or action failure.
// Params: wrapped root cause.
// Returns: error the retry loop and queue worker treat as final.
type Error struct {
	Err error
}

// Error returns the wrapped failure message.
// Params: none.
// Returns: cause text, or a placeholder for an empty wrap.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Permanent tags the error as non-retryable.
// Params: none.
// Returns: true.
func (Error) Permanent() bool {
	return true
}

// Mark wraps a dispatch failure as non-retryable.
// Params: source error.
// Returns: marked error, or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether an error anywhere in the chain is non-retryable.
// Params: candidate error.
// Returns: true when a permanent marker is present.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
