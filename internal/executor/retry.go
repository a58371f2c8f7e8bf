package executor

import (
	"fmt"
	"time"
)

const maxLaunchRetries = 3

// retryBaseDelay scales the backoff between attempts. Tests shrink it.
var retryBaseDelay = time.Second

// tryRunR attempts to run a function for maxRetries time. If any time the function f succeeds,
// it will return the result with no error straightaway. Otherwise, it will return the last error
func tryRunR[R any](maxRetries int, f func() (R, error)) (result R, lastErr error) {
	for attempts := 1; attempts-1 < maxRetries; attempts++ {
		result, err := f()
		if err == nil {
			return result, nil
		}

		lastErr = err
		time.Sleep(time.Duration(attempts) * retryBaseDelay) // Exponential backoff
	}
	return result, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// tryRun attempts to run a function maxRetries time. If any time the function f succeeds,
// it will return with no error straightaway. Otherwise, it will return the error
func tryRun(maxRetries int, f func() error) (lastErr error) {
	for attempts := 1; attempts-1 < maxRetries; attempts++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempts) * retryBaseDelay) // Exponential backoff
	}

	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}
