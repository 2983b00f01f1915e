package downloader

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff configures one retry tier.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Sleep pauses between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0,1). Defaults to math/rand.
	Jitter func() float64
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// Retry runs op until it succeeds, the classifier rejects its error, or the
// attempt budget is spent. The final error is returned unchanged. onRetry,
// when non-nil, is called before every pause.
func Retry[T any](ctx context.Context, b Backoff, classifier Classifier, op func(context.Context) (T, error), onRetry func(RetryEvent)) (T, error) {
	var zero T
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 || ctx.Err() != nil {
			break
		}
		if classifier != nil && !classifier.Classify(err).Retryable {
			break
		}

		delay := b.delay(attempt)
		if onRetry != nil {
			onRetry(RetryEvent{Attempt: attempt + 1, Delay: delay, Err: err})
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// delay is min(base*2^attempt, max) plus 1-10% jitter, never exceeding max.
func (b Backoff) delay(attempt int) time.Duration {
	base := float64(b.BaseDelay) * math.Pow(2, float64(attempt))
	limit := float64(b.MaxDelay)
	if limit > 0 && base > limit {
		base = limit
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = rand.Float64 //nolint:gosec
	}
	total := base + base*(0.01+0.09*jitter())
	if limit > 0 && total > limit {
		total = limit
	}
	return time.Duration(total)
}

// SleepContext sleeps for d, returning ctx.Err() early if ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
