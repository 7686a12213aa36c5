// Package ratelimit bounds how often an identity may perform an action
// within a window, using a store that can apply conditional updates.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wellness-agent/internal/domain"
)

var (
	// ErrInvalidArgument is returned for empty keys or non-positive limits.
	ErrInvalidArgument = errors.New("ratelimit: invalid argument")
	// ErrContention is returned when the conditional write kept losing races.
	ErrContention = errors.New("ratelimit: too much contention on window")
)

// Store holds one counter row per (identifier, action). Both write methods
// are single conditional operations: they apply only if the stored row is
// still the one the caller read, and report false otherwise.
type Store interface {
	GetWindow(ctx context.Context, identifier, action string) (domain.RateWindow, bool, error)
	// IncrementWindow adds one to count iff the row's windowStart equals
	// windowStart and count < limit.
	IncrementWindow(ctx context.Context, identifier, action string, windowStart time.Time, limit int) (bool, error)
	// StartWindow writes count=1 at start iff the row is absent (prev nil) or
	// its windowStart still equals *prev.
	StartWindow(ctx context.Context, identifier, action string, start time.Time, prev *time.Time) (bool, error)
}

// Result is Allowed or Rejected(RetryAfter).
type Result struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Rule is a configured limit for one action.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter implements check-and-consume over a Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

// New builds a Limiter over store.
func New(store Store) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	return &Limiter{store: store, now: time.Now}, nil
}

// CheckAndConsume admits the call and counts it if the current window for
// (identifier, action) has fewer than limit admissions, otherwise rejects
// with the time until the window rolls over. Under any number of concurrent
// callers at most limit are admitted per window.
func (l *Limiter) CheckAndConsume(ctx context.Context, identifier, action string, limit int, window time.Duration) (Result, error) {
	if strings.TrimSpace(identifier) == "" || strings.TrimSpace(action) == "" {
		return Result{}, fmt.Errorf("%w: identifier and action are required", ErrInvalidArgument)
	}
	if limit <= 0 || window <= 0 {
		return Result{}, fmt.Errorf("%w: limit and window must be positive", ErrInvalidArgument)
	}

	// Each lost race means another caller's write landed, and at most limit
	// increments plus one rollover can land per window.
	attempts := limit + 3
	for i := 0; i < attempts; i++ {
		now := l.now().UTC().Truncate(time.Millisecond)

		w, ok, err := l.store.GetWindow(ctx, identifier, action)
		if err != nil {
			return Result{}, fmt.Errorf("ratelimit: read window: %w", err)
		}

		if !ok || now.Sub(w.WindowStart) >= window {
			var prev *time.Time
			if ok {
				ws := w.WindowStart
				prev = &ws
			}
			won, err := l.store.StartWindow(ctx, identifier, action, now, prev)
			if err != nil {
				return Result{}, fmt.Errorf("ratelimit: start window: %w", err)
			}
			if won {
				return Result{Allowed: true, Count: 1, Remaining: limit - 1}, nil
			}
			continue
		}

		if w.Count >= limit {
			return Result{Count: w.Count, RetryAfter: retryAfter(w.WindowStart, window, now)}, nil
		}

		won, err := l.store.IncrementWindow(ctx, identifier, action, w.WindowStart, limit)
		if err != nil {
			return Result{}, fmt.Errorf("ratelimit: increment window: %w", err)
		}
		if won {
			return Result{Allowed: true, Count: w.Count + 1, Remaining: limit - w.Count - 1}, nil
		}
	}
	return Result{}, ErrContention
}

// Consume applies rule to (identifier, action).
func (l *Limiter) Consume(ctx context.Context, identifier, action string, rule Rule) (Result, error) {
	return l.CheckAndConsume(ctx, identifier, action, rule.Limit, rule.Window)
}

func retryAfter(windowStart time.Time, window time.Duration, now time.Time) time.Duration {
	d := windowStart.Add(window).Sub(now)
	if d <= 0 {
		// Clock skew between instances; never hand back a zero hint.
		return time.Second
	}
	return d
}
