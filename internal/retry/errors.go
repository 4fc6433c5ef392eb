package retry

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an attempt aborted by its wall-clock bound.
type TimeoutError struct {
	Attempt int
	Limit   time.Duration

	// Err is whatever the body returned after its context expired.
	// It may be nil.
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("attempt %d exceeded %v", e.Attempt+1, e.Limit)
	}
	return fmt.Sprintf("attempt %d exceeded %v: %v", e.Attempt+1, e.Limit, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth rerunning. Run returns it immediately.
// A nil err yields nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTimeout reports whether err contains a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
