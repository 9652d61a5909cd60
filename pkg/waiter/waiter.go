// Package waiter implements the blocking poll used between every resource
// state transition: fetch a status, test it, sleep a fixed delay, repeat.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for resource")

// Config is the polling budget of one call site.
type Config struct {
	Delay       time.Duration
	MaxAttempts int
}

func (c Config) String() string {
	return fmt.Sprintf("every %s, at most %d attempts", c.Delay, c.MaxAttempts)
}

// Budget is the worst case time spent in a wait that never matches.
func (c Config) Budget() time.Duration {
	if c.MaxAttempts <= 1 {
		return 0
	}
	return c.Delay * time.Duration(c.MaxAttempts-1)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// TimeoutError reports which resource never matched and after how many polls.
type TimeoutError struct {
	Resource string
	Attempts int
	Last     string
}

func (e *TimeoutError) Error() string {
	if e.Last != "" {
		return fmt.Sprintf("%s: %s after %d attempts (last status %q)", ErrTimeout, e.Resource, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s: %s after %d attempts", ErrTimeout, e.Resource, e.Attempts)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Until polls fetch until done returns true. The first poll happens
// immediately; a match on it returns without sleeping. After cfg.MaxAttempts
// polls without a match it returns a *TimeoutError. A fetch error ends the
// wait at once.
func Until[T any](ctx context.Context, cfg Config, sleep SleepFunc, resource string, fetch func(context.Context) (T, error), done func(T) bool) (T, error) {
	var last T
	if sleep == nil {
		sleep = Sleep
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			return last, fmt.Errorf("waiting for %s: %w", resource, err)
		}
		last = status
		if done(status) {
			slog.DebugContext(ctx, "Resource reached desired status", "resource", resource, "attempts", attempt)
			return status, nil
		}
		if attempt >= attempts {
			return last, &TimeoutError{Resource: resource, Attempts: attempt, Last: fmt.Sprint(status)}
		}
		if err := sleep(ctx, cfg.Delay); err != nil {
			return last, fmt.Errorf("waiting for %s: %w", resource, err)
		}
	}
}
