package poll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_SucceedsAfterSomePolls(t *testing.T) {
	calls := 0
	ok, err := Until(context.Background(), 5*time.Millisecond, time.Second, func() bool {
		calls++
		return calls == 3
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestUntil_TimesOutWithinBudget(t *testing.T) {
	start := time.Now()
	ok, err := Until(context.Background(), 5*time.Millisecond, 60*time.Millisecond, func() bool { return false })
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestUntil_ZeroTimeoutEvaluatesOnce(t *testing.T) {
	calls := 0
	ok, err := Until(context.Background(), time.Millisecond, 0, func() bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestUntil_IntervalLargerThanTimeout(t *testing.T) {
	start := time.Now()
	ok, err := Until(context.Background(), time.Hour, 20*time.Millisecond, func() bool { return false })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	ok, err := Until(ctx, 5*time.Millisecond, 5*time.Second, func() bool { return false })
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntil_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := Until(ctx, time.Millisecond, time.Second, func() bool {
		called = true
		return true
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSettle(t *testing.T) {
	require.NoError(t, Settle(context.Background(), time.Millisecond))
	require.NoError(t, Settle(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Settle(ctx, time.Hour), context.Canceled)
}
