package classify

import (
	"context"
	"errors"
	"time"
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn up to retries+1 times, sleeping base*2^i between attempts. It stops
// early on success, a Permanent error, or a done context, and returns the last error.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) error {
	if retries < 0 {
		retries = 0
	}
	var err error
	for i := 0; i <= retries; i++ {
		if i > 0 {
			timer := time.NewTimer(base << (i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), err)
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
