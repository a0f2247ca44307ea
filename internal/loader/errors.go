package loader

import (
	"errors"
	"fmt"
)

// Reason classifies why a run ended without a normal completion.
type Reason int

const (
	// NoDataFromSource: every attempted batch came back empty or failed and
	// nothing was cached.
	NoDataFromSource Reason = iota + 1
	// TooManyConsecutiveFailures: the consecutive failure ceiling was hit.
	TooManyConsecutiveFailures
	// Aborted: the run was stopped or its context cancelled before any
	// data was obtained.
	Aborted
)

func (r Reason) String() string {
	switch r {
	case NoDataFromSource:
		return "no data from source"
	case TooManyConsecutiveFailures:
		return "too many consecutive failures"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// LoadError is the only error a run surfaces to its caller.
type LoadError struct {
	Reason Reason
	Err    error // last underlying failure, may be nil
}

// Sentinels for errors.Is matching on Reason alone.
var (
	ErrNoData          = &LoadError{Reason: NoDataFromSource}
	ErrTooManyFailures = &LoadError{Reason: TooManyConsecutiveFailures}
	ErrAborted         = &LoadError{Reason: Aborted}
)

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load failed: %s: %v", e.Reason, e.Err)
	}
	return "load failed: " + e.Reason.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches another LoadError with the same Reason and no wrapped error,
// which is how the sentinels are shaped.
func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	return ok && t.Err == nil && t.Reason == e.Reason
}

// errEmptyResult marks an attempt where the source answered but resolved
// none of the batch's symbols.
var errEmptyResult = errors.New("source returned no quotes for batch")
