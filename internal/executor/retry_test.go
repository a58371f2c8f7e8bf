package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryRun(t *testing.T) {
	prev := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = prev })

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := tryRun(3, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up with the last error", func(t *testing.T) {
		boom := errors.New("boom")
		err := tryRun(3, func() error { return boom })
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("returns the first good result", func(t *testing.T) {
		calls := 0
		got, err := tryRunR(3, func() (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("transient")
			}
			return "pod-1", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "pod-1", got)
		assert.Equal(t, 2, calls)
	})
}
