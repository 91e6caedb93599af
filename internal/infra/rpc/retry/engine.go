// Package retry executes operations against the generation API under a
// bounded exponential-backoff policy.
//
// Attempts within one Execute call are strictly sequential: attempt n+1 never
// starts before attempt n has been classified and its backoff has elapsed.
// Engines hold no per-call state and are safe to share.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// Operation is a single attempt at the protected call.
type Operation[T any] func(ctx context.Context) (T, error)

// Stats describes a finished Execute call.
type Stats[T any] struct {
	Result        T
	Attempts      int
	TotalDuration time.Duration
	Errors        []error
}

// RetryObserver is notified before every backoff sleep.
type RetryObserver func(operation string, kind classify.Kind, attempt int, delay time.Duration)

// Engine runs operations under a Policy.
type Engine struct {
	log          *slog.Logger
	rand         func() float64
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	kindPolicies map[classify.Kind]Policy
	observer     RetryObserver
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRand sets the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(e *Engine) { e.rand = fn }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// WithKindPolicy overrides the delay parameters used after a failure of the
// given kind. MaxRetries always comes from the call-site policy.
func WithKindPolicy(kind classify.Kind, p Policy) Option {
	return func(e *Engine) { e.kindPolicies[kind] = p }
}

// WithRetryObserver registers a hook called before each backoff sleep.
func WithRetryObserver(fn RetryObserver) Option {
	return func(e *Engine) { e.observer = fn }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:          slog.Default(),
		rand:         rand.Float64,
		sleep:        sleepContext,
		now:          time.Now,
		kindPolicies: make(map[classify.Kind]Policy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op until it succeeds, fails with a non-retryable error, or the
// policy's retries are exhausted.
//
// A non-retryable failure returns a *classify.ClassifiedError after a single
// attempt; exhaustion returns an *AggregateError. Context cancellation is
// checked before every attempt and during backoff.
func Execute[T any](ctx context.Context, e *Engine, name string, p Policy, op Operation[T]) (T, error) {
	stats, err := ExecuteWithStats(ctx, e, name, p, op)
	return stats.Result, err
}

// ExecuteWithStats is Execute, also reporting attempts, elapsed time and every
// error observed. Stats are populated on failure too.
func ExecuteWithStats[T any](
	ctx context.Context,
	e *Engine,
	name string,
	p Policy,
	op Operation[T],
) (Stats[T], error) {
	var stats Stats[T]
	if op == nil {
		return stats, ErrNilOperation
	}

	p = p.Normalize()
	start := e.now()

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			stats.TotalDuration = e.now().Sub(start)
			return stats, fmt.Errorf("%s canceled after %d attempts: %w", name, n, err)
		}

		result, err := op(ctx)
		stats.Attempts = n + 1
		if err == nil {
			if n > 0 {
				e.log.Info("Operation succeeded after retries",
					"operation", name, "failures", n)
			}
			stats.Result = result
			stats.TotalDuration = e.now().Sub(start)
			return stats, nil
		}

		stats.Errors = append(stats.Errors, err)
		ce := classify.Classify(err)

		if n == p.MaxRetries {
			stats.TotalDuration = e.now().Sub(start)
			return stats, &AggregateError{
				Operation:     name,
				Attempts:      n + 1,
				TotalDuration: stats.TotalDuration,
				Errors:        stats.Errors,
				LastError:     err,
				Status:        ce.StatusCode(),
			}
		}

		if !ce.Retryable {
			stats.TotalDuration = e.now().Sub(start)
			e.log.Debug("Non-retryable failure",
				"operation", name, "attempt", n+1, "kind", ce.Kind, "error", err)
			return stats, ce
		}

		kp := e.policyFor(ce.Kind, p)
		delay := Backoff(kp, n, e.rand)
		// A server-requested wait only ever lengthens the backoff.
		if ra := retryAfter(err); ra > delay {
			delay = max(delay, min(ra, kp.MaxDelay))
		}
		if e.observer != nil {
			e.observer(name, ce.Kind, n+1, delay)
		}
		e.log.Warn("Attempt failed, retrying",
			"operation", name,
			"attempt", n+1,
			"kind", ce.Kind,
			"delay", delay,
			"error", err,
		)

		if err := e.sleep(ctx, delay); err != nil {
			stats.TotalDuration = e.now().Sub(start)
			return stats, fmt.Errorf("%s canceled after %d attempts: %w", name, n+1, err)
		}
	}
}

// BackoffFor returns the delay Execute would sleep after attempt n failed
// with the given kind.
func (e *Engine) BackoffFor(p Policy, kind classify.Kind, n int) time.Duration {
	return Backoff(e.policyFor(kind, p.Normalize()), n, e.rand)
}

func (e *Engine) policyFor(kind classify.Kind, p Policy) Policy {
	o, ok := e.kindPolicies[kind]
	if !ok {
		return p
	}
	o.MaxRetries = p.MaxRetries
	return o.Normalize()
}

// retryAfter returns the server-requested wait carried by err, if any.
func retryAfter(err error) time.Duration {
	var ra interface{ RetryAfter() time.Duration }
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
