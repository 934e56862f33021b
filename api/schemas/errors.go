package schemas

import (
	"context"
	"errors"
	"fmt"
)

// InvalidTargetMessage is what observers see when a scan target is rejected.
const InvalidTargetMessage = "Please provide a valid URL with http/https."

// ErrSessionClosed is returned when a released session is used again.
var ErrSessionClosed = errors.New("browser session closed")

// InvalidInputError rejects a scan request before any browser work starts.
type InvalidInputError struct {
	URL    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid scan target %q: %s", e.URL, e.Reason)
}

// NavigationError is a recoverable, page-scoped failure.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("navigation to %s failed", e.URL)
	}
	return e.Err.Error()
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Timeout reports whether the navigation hit its deadline.
func (e *NavigationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// BackendFatalError means the browser session can no longer be used and the
// scan has to be aborted.
type BackendFatalError struct {
	Op  string
	Err error
}

func (e *BackendFatalError) Error() string {
	return fmt.Sprintf("browser backend failure during %s: %v", e.Op, e.Err)
}

func (e *BackendFatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err should abort a whole scan.
func IsFatal(err error) bool {
	var fatal *BackendFatalError
	return errors.As(err, &fatal)
}
