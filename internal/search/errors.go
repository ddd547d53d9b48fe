package search

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// LateCheckTolerance is how far past the deadline a termination check may be
// observed before it is reported as a late termination check.
const LateCheckTolerance = 50 * time.Millisecond

var (
	ErrIllegalState          = errors.New("illegal search state")
	ErrCancelled             = errors.New("search cancelled")
	ErrAlgorithmTimeout      = errors.New("search timed out")
	ErrLateTerminationCheck  = errors.New("termination check observed late")
	ErrNotYetComputable      = errors.New("score not yet computable")
	ErrEvaluationFailed      = errors.New("node evaluation failed")
	ErrNodeTimeout           = errors.New("node evaluation timed out")
	ErrNoMoreSolutions       = errors.New("no more solutions")
	ErrInconsistentGenerator = errors.New("graph generator is not deterministic")
)

// TimeoutError reports a breached global deadline and how late the breach was
// noticed.
type TimeoutError struct {
	Deadline time.Time
	Observed time.Time
}

// Delay is the time between the deadline and the check that noticed it.
func (e *TimeoutError) Delay() time.Duration {
	return e.Observed.Sub(e.Deadline)
}

// Late reports whether the check came in past LateCheckTolerance.
func (e *TimeoutError) Late() bool {
	return e.Delay() > LateCheckTolerance
}

func (e *TimeoutError) Error() string {
	if e.Late() {
		return fmt.Sprintf("search timed out: termination check %s past deadline", e.Delay())
	}
	return fmt.Sprintf("search timed out (delay %s)", e.Delay())
}

// Is lets errors.Is match the sentinels a timeout stands for.
func (e *TimeoutError) Is(target error) bool {
	if target == ErrAlgorithmTimeout {
		return true
	}
	return target == ErrLateTerminationCheck && e.Late()
}

// normalize maps infrastructure faults onto the shared vocabulary. Errors
// outside it are marked as evaluation failures.
func normalize(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return errors.Mark(errors.Wrap(err, op), ErrCancelled)
	case errors.Is(err, ErrNodeTimeout), errors.Is(err, context.DeadlineExceeded):
		return errors.Mark(errors.Wrap(err, op), ErrNodeTimeout)
	case errors.Is(err, ErrNotYetComputable), errors.Is(err, ErrEvaluationFailed):
		return err
	default:
		return errors.Mark(errors.Wrap(err, op), ErrEvaluationFailed)
	}
}
