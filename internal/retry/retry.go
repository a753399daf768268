// Package retry re-attempts transient failures around an arbitrary
// operation. The loop never panics and never reports through multiple
// channels: every outcome, success or failure, lands in the returned Result.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/event"
)

// Strategy selects how the delay grows between attempts.
type Strategy string

// Backoff strategies.
const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Classifier decides whether an error is transient and worth retrying.
type Classifier func(error) bool

// Config controls the retry loop. The zero value performs a single attempt
// with no delay; use DefaultConfig for the engine's standard policy.
type Config struct {
	// MaxRetries is the number of re-attempts after the first try, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the delay unit the strategy scales.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// Strategy selects the growth function. Defaults to fixed.
	Strategy Strategy

	// DelaySequence, when non-empty, overrides the strategy entirely:
	// the nth failure sleeps DelaySequence[n-1], clamped to the last
	// element once the sequence is exhausted.
	DelaySequence []time.Duration

	// Classifier decides retryability. Nil falls back to the engine
	// default: an explicit retryable flag on a domain error, else a
	// transient-signature match on the error message.
	Classifier Classifier

	// Operation names the wrapped operation in emitted events.
	Operation string

	// Bus receives attempt/success/failure/exhausted events. May be nil.
	Bus *event.Bus
}

// DefaultConfig returns the engine's standard retry policy: three retries
// with exponential backoff from 10s capped at 60s.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  10 * time.Second,
		MaxDelay:   60 * time.Second,
		Strategy:   StrategyExponential,
	}
}

// Result reports the outcome of a retry loop.
type Result[T any] struct {
	// Success is true when some attempt returned without error.
	Success bool
	// Value is the successful result. Zero when Success is false.
	Value T
	// Err is the error from the final attempt. Nil when Success is true.
	Err error
	// Attempts is the number of attempts actually performed.
	Attempts int
	// TotalTime is the wall-clock time spent, including delays.
	TotalTime time.Duration
}

// Do runs op with up to cfg.MaxRetries+1 attempts. The first non-erroring
// attempt wins and the loop exits immediately with no further delay. On
// failure a classifier decides retryability: a non-retryable error or an
// exhausted attempt budget ends the loop without further delay. A panic in
// op is captured as a non-retryable failure.
//
// Cancelling ctx during an inter-attempt delay ends the loop with the
// context error; no mutation of shared state happens during the wait.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) Result[T] {
	classify := cfg.Classifier
	if classify == nil {
		classify = errors.IsRetryable
	}

	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	var res Result[T]

	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		publish(cfg, event.NewRetryAttemptEvent(cfg.Operation, attempt))

		value, err := safeInvoke(ctx, op)
		if err == nil {
			res.Success = true
			res.Value = value
			res.TotalTime = time.Since(start)
			publish(cfg, event.NewRetrySucceededEvent(cfg.Operation, attempt))
			return res
		}

		res.Err = err

		if !classify(err) {
			res.TotalTime = time.Since(start)
			publish(cfg, event.NewRetryFailedEvent(cfg.Operation, attempt, err.Error()))
			return res
		}
		if attempt == attempts {
			res.TotalTime = time.Since(start)
			publish(cfg, event.NewRetryExhaustedEvent(cfg.Operation, attempt, err.Error()))
			return res
		}

		if err := sleep(ctx, CalculateDelay(cfg, attempt)); err != nil {
			res.Err = errors.Wrap(err, "retry canceled")
			res.TotalTime = time.Since(start)
			publish(cfg, event.NewRetryFailedEvent(cfg.Operation, attempt, res.Err.Error()))
			return res
		}
	}

	res.TotalTime = time.Since(start)
	return res
}

// CalculateDelay returns the delay to sleep after the given 1-based failed
// attempt. An explicit DelaySequence takes precedence over the strategy;
// otherwise the delay is BaseDelay scaled by the strategy growth function
// and capped at MaxDelay.
func CalculateDelay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	if len(cfg.DelaySequence) > 0 {
		idx := attempt - 1
		if idx >= len(cfg.DelaySequence) {
			idx = len(cfg.DelaySequence) - 1
		}
		return cfg.DelaySequence[idx]
	}

	var d time.Duration
	switch cfg.Strategy {
	case StrategyLinear:
		d = cfg.BaseDelay * time.Duration(attempt)
	case StrategyExponential:
		// Shift overflows past 62; anything that large is over any cap.
		if attempt > 62 {
			d = 1<<62 - 1
		} else {
			d = cfg.BaseDelay << (attempt - 1)
		}
	default:
		d = cfg.BaseDelay
	}

	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d < 0 {
		d = cfg.MaxDelay
	}
	return d
}

// safeInvoke calls op, converting a panic into a non-retryable error so the
// retry loop always reports its outcome through the Result value.
func safeInvoke[T any](ctx context.Context, op func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// publish sends an event to the configured bus, if any.
func publish(cfg Config, e event.Event) {
	if cfg.Bus != nil {
		cfg.Bus.Publish(e)
	}
}
