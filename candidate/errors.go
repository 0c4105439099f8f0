package candidate

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind    = errors.New("unknown kind")
	ErrUnknownParam   = errors.New("unknown parameter")
	ErrEmptyTraining  = errors.New("training subset has no rows")
	ErrNoTarget       = errors.New("no finite values in target")
	ErrNoCompleteRows = errors.New("no training row has every predictor and the target")
	ErrNotBinary      = errors.New("target is not a 0/1 label")
	ErrNotConverged   = errors.New("did not converge")
)

// FitError is a failure to fit one candidate. It excludes the candidate
// from selection without stopping the others.
type FitError struct {
	Candidate string
	Err       error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s: %v", e.Candidate, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }
