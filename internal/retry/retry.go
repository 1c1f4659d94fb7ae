// Package retry wraps outward calls with bounded retries, exponential backoff and per-attempt timeouts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/provider"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 60 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Policy configures the adapter. Zero fields fall back to the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Timeout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
		Timeout:     DefaultTimeout,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// Delay is the wait after the given failed attempt: base * multiplier^(attempt-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Attempt describes one invocation of a wrapped call.
type Attempt struct {
	Service   string
	Operation string
	Number    int
	Duration  time.Duration
	Err       error
	Transient bool
}

func (a Attempt) Succeeded() bool { return a.Err == nil }

// Observer receives one record per attempt.
type Observer interface {
	ObserveAttempt(Attempt)
}

// OutwardCallError is returned when a call fails permanently or exhausts its attempts.
type OutwardCallError struct {
	Service   string
	Operation string
	Attempts  int
	Transient bool
	Cause     error
}

func (e *OutwardCallError) Error() string {
	if e.Transient {
		return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Service, e.Operation, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Cause)
}

func (e *OutwardCallError) Unwrap() error { return e.Cause }

// AttemptsOf returns the attempt count carried by err, or 0.
func AttemptsOf(err error) int {
	var callErr *OutwardCallError
	if errors.As(err, &callErr) {
		return callErr.Attempts
	}
	return 0
}

// Adapter applies one Policy to every call it wraps. It is safe for concurrent use.
type Adapter struct {
	policy    Policy
	observers []Observer
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

func NewAdapter(policy Policy, logger *zap.Logger, observers ...Observer) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		policy:    policy.normalized(),
		observers: compactObservers(observers),
		logger:    logger,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

func (a *Adapter) Policy() Policy { return a.policy }

// WithObserver returns a copy of the adapter that also reports to o.
func (a *Adapter) WithObserver(o Observer) *Adapter {
	clone := *a
	clone.observers = compactObservers(append(append([]Observer(nil), a.observers...), o))
	return &clone
}

// WithLogger returns a copy of the adapter that logs to logger.
func (a *Adapter) WithLogger(logger *zap.Logger) *Adapter {
	if logger == nil {
		return a
	}
	clone := *a
	clone.logger = logger
	return &clone
}

// Do runs fn under the adapter policy and returns the number of attempts made.
func (a *Adapter) Do(ctx context.Context, service, operation string, fn func(ctx context.Context) error) (int, error) {
	_, attempts, err := Call(ctx, a, service, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return attempts, err
}

// Call runs fn until it succeeds, fails permanently or exhausts MaxAttempts. Each attempt gets its
// own timeout; cancellation of ctx stops further attempts.
func Call[T any](ctx context.Context, a *Adapter, service, operation string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	policy := a.policy

	var lastErr error
	var transient bool
	attempt := 0
	for attempt < policy.MaxAttempts {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		start := a.now()
		value, err := fn(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		duration := a.now().Sub(start)
		if err == nil {
			a.observe(Attempt{Service: service, Operation: operation, Number: attempt, Duration: duration})
			return value, attempt, nil
		}

		lastErr = err
		transient = provider.IsTransient(err) || (timedOut && ctx.Err() == nil)
		a.observe(Attempt{
			Service:   service,
			Operation: operation,
			Number:    attempt,
			Duration:  duration,
			Err:       err,
			Transient: transient,
		})

		if !transient || ctx.Err() != nil || attempt >= policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		a.logger.Warn("outward call failed, retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := a.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()) {
		lastErr = fmt.Errorf("%w: %w", ctx.Err(), lastErr)
	}

	return zero, attempt, &OutwardCallError{
		Service:   service,
		Operation: operation,
		Attempts:  attempt,
		Transient: transient,
		Cause:     lastErr,
	}
}

func (a *Adapter) observe(attempt Attempt) {
	for _, o := range a.observers {
		o.ObserveAttempt(attempt)
	}
}

func compactObservers(observers []Observer) []Observer {
	out := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
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
