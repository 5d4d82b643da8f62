package page

import (
	"errors"
	"fmt"
)

// Outcome classifies how an interaction ended.
type Outcome int

const (
	// Success means the interaction completed.
	Success Outcome = iota
	// Timeout means the target existed but never reached the required state
	// (visible, clickable, expected URL, window count) before the deadline.
	Timeout
	// NotFound means nothing matching the locator or pick ever appeared.
	NotFound
	// Failed covers backend errors, mismatched checks and caller cancellation.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	// ErrTimeout is wrapped by the Err of every Timeout result.
	ErrTimeout = errors.New("timed out")
	// ErrNotFound is wrapped by the Err of every NotFound result.
	ErrNotFound = errors.New("not found")
	// ErrMismatch is wrapped when a check ran but observed a different value.
	ErrMismatch = errors.New("mismatch")
)

// Result is returned by every page operation in place of a bare boolean.
// Err is nil exactly when Outcome is Success.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports whether the interaction succeeded.
func (r Result) OK() bool { return r.Outcome == Success }

func (r Result) String() string {
	if r.Err == nil {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Err.Error()
}

func succeeded() Result { return Result{Outcome: Success} }

func timedOut(format string, args ...any) Result {
	return Result{Outcome: Timeout, Err: fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))}
}

func notFound(format string, args ...any) Result {
	return Result{Outcome: NotFound, Err: fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))}
}

func failed(err error, format string, args ...any) Result {
	return Result{Outcome: Failed, Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)}
}

func mismatched(format string, args ...any) Result {
	return Result{Outcome: Failed, Err: fmt.Errorf("%w: %s", ErrMismatch, fmt.Sprintf(format, args...))}
}
