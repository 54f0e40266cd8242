package rag

import (
	"context"
	"time"

	"research-agent/internal/llm"
)

// backoffDelay doubles base for each attempt, honours a larger Retry-After, and caps at max.
func backoffDelay(base, max time.Duration, attempt int, lastErr error) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	d := base << attempt
	if ra, ok := llm.RetryAfter(lastErr); ok && ra > d {
		d = ra
	}
	if d > max {
		d = max
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
