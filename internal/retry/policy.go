// Package retry runs outbound calls under the configured attempt and time
// limits. Pauses between attempts come from a backoff.BackOff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Policy bounds a retry loop. A zero MaxAttempts or MaxElapsed means that
// dimension is unlimited, so the zero Policy retries forever.
type Policy struct {
	MaxAttempts int
	MaxElapsed  time.Duration
}

// Attempts returns a policy allowing exactly n attempts.
func Attempts(n int) Policy {
	return Policy{MaxAttempts: n}
}

func (p Policy) Unlimited() bool {
	return p.MaxAttempts <= 0 && p.MaxElapsed <= 0
}

// Options translates p for backoff.Retry. MaxElapsed is always set because
// backoff otherwise stops after its own default of 15 minutes.
func (p Policy) Options(b backoff.BackOff, notify backoff.Notify) []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(max(p.MaxElapsed, 0)),
	}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(p.MaxAttempts)))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return opts
}

// Do calls op until it succeeds, returns a Stop error, ctx is done or p is
// used up. notify may be nil.
func Do[T any](ctx context.Context, p Policy, b backoff.BackOff, notify backoff.Notify, op backoff.Operation[T]) (T, error) {
	return backoff.Retry(ctx, op, p.Options(b, notify)...)
}

// Stop marks err as final: Do returns it without another attempt.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// After asks Do to wait exactly d before the next attempt, whatever the
// BackOff would pick.
func After(d time.Duration, err error) error {
	return fmt.Errorf("%w: %w", err, &backoff.RetryAfterError{Duration: d})
}
