package llm

import (
	"context"
	"time"

	"github.com/modoterra/logseer/pkg/core"
)

// Retry runs fn up to attempts times. Transient failures back off
// exponentially from base before the next try; permanent failures and
// context cancellation return immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(backoff(base, i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// backoff returns exponential backoff delay: base, 2x, 4x, ... capped at
// 30 seconds. The shift count is clamped so large failure counts cannot
// overflow the duration.
func backoff(base time.Duration, failures int) time.Duration {
	if failures > 6 {
		failures = 6
	}
	d := base << uint(failures-1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
