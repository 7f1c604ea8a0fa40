// Package retry runs fallible operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Config shapes the delays between attempts. Jitter is the fraction by which
// a delay may move either way, so 0.15 yields delays within 15% of nominal.
type Config struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
}

// DefaultConfig suits dependencies that may come up after the devnet, such as
// Redis in a compose file.
func DefaultConfig() Config {
	return Config{Attempts: 6, Initial: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.15}
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as final. WithBackoff returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// WithBackoff calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := max(cfg.Attempts, 1)

	var err error
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if err = fn(); err == nil {
			if n > 1 {
				logger.Info("Recovered after retries", zap.String("op", op), zap.Int("attempts", n))
			}
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return fmt.Errorf("%s: %w", op, p.err)
		}
		if n == attempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, err)
		}

		wait := Backoff(cfg, n)
		logger.Warn("Attempt failed",
			zap.String("op", op),
			zap.Int("attempt", n),
			zap.Int("attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := Sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

// Backoff is the delay that follows the n-th failed attempt, counting from 1.
func Backoff(cfg Config, n int) time.Duration {
	d := min(float64(cfg.Initial)*math.Pow(cfg.Factor, float64(n-1)), float64(cfg.Max))
	if cfg.Jitter > 0 {
		d *= 1 + cfg.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
