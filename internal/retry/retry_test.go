package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient(errors.New("connection refused"))
		}
		return 42, nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad credentials")
	calls := 0
	_, err := Do(context.Background(), fastConfig(5), func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	}, nil)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	var retried []int
	_, err := Do(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		return 0, Transient(errors.New("still down"))
	}, func(attempt int, _ error) { retried = append(retried, attempt) })

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MaxAttempts: 0, InitialWait: time.Hour}
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		return 0, Transient(errors.New("down"))
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
}
