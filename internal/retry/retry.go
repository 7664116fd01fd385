// Package retry runs operations under a bounded, classified retry policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Action tells Do what to do with a failed attempt.
type Action int

// Action values.
const (
	// Stop returns the error to the caller unchanged.
	Stop Action = iota
	// Retry waits for the next backoff interval.
	Retry
	// RetryAfter waits for the duration supplied by the classifier.
	RetryAfter
)

// Verdict is the classification of a single failure.
type Verdict struct {
	Action Action
	Wait   time.Duration
}

// Classifier maps an error to a verdict.
type Classifier func(err error) Verdict

// StopOn is a verdict helper.
func StopOn() Verdict { return Verdict{Action: Stop} }

// Backoff is a verdict helper for exponential retries.
func Backoff() Verdict { return Verdict{Action: Retry} }

// After is a verdict helper for server-mandated waits.
func After(d time.Duration) Verdict { return Verdict{Action: RetryAfter, Wait: d} }

// AlwaysRetry is a Classifier that backs off on every error.
func AlwaysRetry(error) Verdict { return Backoff() }

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
}

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Notify is called before every wait.
type Notify func(attempt int, err error, wait time.Duration)

type options struct {
	sleep  Sleeper
	notify Notify
}

// Option customizes Do.
type Option func(*options)

// WithSleeper replaces the real clock, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithNotify registers a hook called before each wait.
func WithNotify(n Notify) Option {
	return func(o *options) { o.notify = n }
}

// Do calls fn until it succeeds, the classifier stops it, the attempts run
// out or ctx is cancelled.
func Do(ctx context.Context, p Policy, classify Classifier, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	schedule := p.schedule()

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		v := classify(err)
		if v.Action == Stop {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := v.Wait
		if v.Action == Retry {
			wait = schedule.NextBackOff()
			if wait == backoff.Stop {
				break
			}
		}

		if o.notify != nil {
			o.notify(attempt, err, wait)
		}
		if err := o.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, last)
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}

func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Minute
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delays returns the first n waits the policy would use for plain retries.
func (p Policy) Delays(n int) []time.Duration {
	s := p.schedule()
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.NextBackOff())
	}
	return out
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
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
