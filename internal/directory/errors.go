package directory

import (
	"errors"
	"fmt"
)

// Sentinel errors the handlers translate into HTTP statuses.
var (
	// ErrNotFound indicates the user record or a role-specific document is missing.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidRole indicates a role outside teacher/student/parent/assistant.
	ErrInvalidRole = errors.New("invalid role")
	// ErrAlreadyExists indicates a manual-repair collision with an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrUpstreamUnavailable indicates the store or identity provider is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// PartialFailureError reports a batch pass that finished with some per-item
// errors. The pass is not aborted; re-running it is safe.
type PartialFailureError struct {
	Failures []string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("pass completed with %d errors", len(e.Failures))
}
