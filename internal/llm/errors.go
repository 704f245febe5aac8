package llm

import (
	"errors"
	"fmt"
)

// CompletionError is a failed clustering completion request.
//
// Retryable failures (transport errors, 429 and 5xx replies) are retried by
// Client. Anything else ends the request, and the run falls back to
// clustering by repository.
type CompletionError struct {
	// Op is the step that failed: "encode", "send", "read", "reply" or "decode".
	Op string
	// Status is the HTTP status of the reply, 0 when none was read.
	Status    int
	Retryable bool
	Err       error
}

func (e *CompletionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("clustering completion %s (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("clustering completion %s: %v", e.Op, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func retryable(op string, status int, err error) error {
	return &CompletionError{Op: op, Status: status, Retryable: true, Err: err}
}

func permanent(op string, status int, err error) error {
	return &CompletionError{Op: op, Status: status, Err: err}
}

// IsTransient reports whether err carries a retryable completion failure.
func IsTransient(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && ce.Retryable
}

// IsFatal reports whether err carries a completion failure that retrying
// will not fix.
func IsFatal(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && !ce.Retryable
}
