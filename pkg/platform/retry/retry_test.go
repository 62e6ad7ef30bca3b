package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func failNTimes(n int) (func(context.Context) error, *int) {
	calls := 0
	return func(context.Context) error {
		calls++
		if calls <= n {
			return errFlaky
		}
		return nil
	}, &calls
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after k failures within budget", func(t *testing.T) {
		fn, calls := failNTimes(2)
		var seen []Attempt
		attempts, err := Do(ctx, Immediate(3), fn, func(a Attempt) { seen = append(seen, a) })

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, *calls)
		require.Len(t, seen, 3)
		assert.ErrorIs(t, seen[0].Err, errFlaky)
		assert.NoError(t, seen[2].Err)
	})

	t.Run("exhausts budget with exactly MaxAttempts calls", func(t *testing.T) {
		fn, calls := failNTimes(10)
		attempts, err := Do(ctx, Immediate(3), fn, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, *calls)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		calls := 0
		attempts, err := Do(ctx, Immediate(5), func(context.Context) error {
			calls++
			return NonRetryable(errFlaky)
		}, nil)

		assert.True(t, IsNonRetryable(err))
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero budget still runs once", func(t *testing.T) {
		fn, calls := failNTimes(0)
		_, err := Do(ctx, Config{}, fn, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, *calls)
	})

	t.Run("cancellation during backoff stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		fn, calls := failNTimes(10)
		cfg := Exponential(5, time.Second, time.Second)

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		attempts, err := Do(cctx, cfg, fn, nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, *calls)
	})
}
