// Package retry re-attempts failed persistence writes in the background,
// detached from the request that produced them.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultAttempts = 4
	defaultBackoff  = 200 * time.Millisecond
	defaultTimeout  = 3 * time.Second
)

// Queue runs retry loops on their own goroutines and lets the caller wait
// for them before the process is frozen.
type Queue struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error

	wg      sync.WaitGroup
	pending atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithAttempts sets how many times a job is re-run before giving up.
func WithAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.attempts = n
		}
	}
}

// WithBackoff sets the initial delay between attempts; it doubles each time.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

// WithAttemptTimeout bounds each individual attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New returns a Queue with defaults applied.
func New(opts ...Option) *Queue {
	q := &Queue{
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Go retries fn in the background. ctx values are kept but its cancellation
// is not: a disconnected client does not stop the retry. giveUp, if set, is
// called with the last error once every attempt has failed.
func (q *Queue) Go(ctx context.Context, name string, fn func(context.Context) error, giveUp func(error)) {
	ctx = context.WithoutCancel(ctx)
	q.wg.Add(1)
	q.pending.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.pending.Add(-1)

		var err error
		delay := q.backoff
		for i := 0; i < q.attempts; i++ {
			if i > 0 {
				_ = q.sleep(ctx, delay)
				delay *= 2
			}
			attemptCtx, cancel := context.WithTimeout(ctx, q.timeout)
			err = fn(attemptCtx)
			cancel()
			if err == nil {
				if i > 0 {
					q.logger.Info("background retry succeeded", "job", name, "attempt", i+1)
				}
				return
			}
			q.logger.Warn("background retry attempt failed", "job", name, "attempt", i+1, "err", err)
		}
		q.logger.Error("background retry exhausted", "job", name, "attempts", q.attempts, "err", err)
		if giveUp != nil {
			giveUp(err)
		}
	}()
}

// Pending returns the number of jobs still running.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Drain waits for running jobs or until ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("retry: drain interrupted"), ctx.Err())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
