package batch

import (
	"context"
	"time"
)

type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Attempt describes how a retried call ended. RetryCount is the number of
// retries after the first try, so a first-try success has RetryCount 0.
type Attempt struct {
	RetryCount int
	Duration   time.Duration
	Err        error
	Cancelled  bool
}

// Retry calls fn until it succeeds, retries are exhausted, or ctx is
// cancelled. The wait between attempts happens in the caller's goroutine,
// so a slot stays with its item for the whole sequence.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, Attempt) {
	var zero T
	start := time.Now()
	att := Attempt{}
	for {
		if ctx.Err() != nil {
			return zero, cancelledAttempt(att, start)
		}

		res, err := fn(ctx)
		if err == nil {
			att.Err = nil
			att.Duration = time.Since(start)
			return res, att
		}
		att.Err = err
		if ctx.Err() != nil {
			return zero, cancelledAttempt(att, start)
		}
		if att.RetryCount >= p.MaxRetries {
			att.Duration = time.Since(start)
			return zero, att
		}

		if !wait(ctx, p.Delay) {
			return zero, cancelledAttempt(att, start)
		}
		att.RetryCount++
	}
}

func cancelledAttempt(att Attempt, start time.Time) Attempt {
	att.Cancelled = true
	att.Err = ErrCancelled
	att.Duration = time.Since(start)
	return att
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
