package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig(retries int) Config {
	return Config{Attempts: retries, Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
}

// TestWithBackoff verifies attempts stop on success, on permanent errors and
// when the budget is spent.
func TestWithBackoff(t *testing.T) {
	errDown := errors.New("connection refused")
	errAuth := errors.New("wrong password")

	tests := []struct {
		name     string
		failures int
		err      error
		wantCall int
		wantErr  error
	}{
		{name: "first try", failures: 0, wantCall: 1},
		{name: "recovers", failures: 2, err: errDown, wantCall: 3},
		{name: "exhausted", failures: 10, err: errDown, wantCall: 4, wantErr: errDown},
		{name: "permanent", failures: 10, err: Permanent(errAuth), wantCall: 1, wantErr: errAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithBackoff(context.Background(), fastConfig(4), zaptest.NewLogger(t), "dial", func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCall, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestWithBackoffCancelled verifies a done context stops before the first call.
func TestWithBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, fastConfig(3), nil, "dial", func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// TestBackoff verifies growth, the cap and the jitter band.
func TestBackoff(t *testing.T) {
	cfg := Config{Initial: time.Second, Max: 5 * time.Second, Factor: 2}
	assert.Equal(t, time.Second, Backoff(cfg, 1))
	assert.Equal(t, 4*time.Second, Backoff(cfg, 3))
	assert.Equal(t, 5*time.Second, Backoff(cfg, 10))

	cfg.Jitter = 0.15
	for i := 0; i < 20; i++ {
		d := Backoff(cfg, 2)
		assert.GreaterOrEqual(t, d, 1700*time.Millisecond)
		assert.LessOrEqual(t, d, 2300*time.Millisecond)
	}
	assert.Nil(t, Permanent(nil))
}

// TestSleep verifies Sleep returns early when the context ends.
func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
