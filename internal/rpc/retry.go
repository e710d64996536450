package rpc

import (
	"errors"
	"math/rand"
	"time"
)

// PermanentError marks an error that must not be retried, such as a
// deterministic venue rejection.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the gate propagates it without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether an error should be retried. Upstream
// errors are retriable by default; only errors explicitly marked
// permanent (deterministic venue rejections and the like) skip the
// retry loop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	return true
}

// backoffWithJitter returns base·2^attempt scaled by a jitter factor
// in [0.7, 1.3].
func backoffWithJitter(base time.Duration, attempt int) time.Duration {
	backoff := base << uint(attempt)
	jitter := 0.7 + 0.6*rand.Float64()
	return time.Duration(float64(backoff) * jitter)
}
