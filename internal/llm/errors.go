package llm

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a backend call that exceeded its deadline. Callers
// branch on it with [errors.Is] to report timeouts differently from
// other backend failures.
var ErrTimeout = errors.New("backend request timed out")

// BackendError wraps any non-timeout failure from the inference
// backend: transport errors, non-2xx statuses, and malformed
// responses.
type BackendError struct {
	// Status is the HTTP status code, or 0 for transport-level
	// failures.
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend error %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("backend error: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
