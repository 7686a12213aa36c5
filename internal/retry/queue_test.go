package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestQueue_SucceedsAfterFailures(t *testing.T) {
	q := New(WithAttempts(3))
	q.sleep = noSleep

	var calls atomic.Int32
	gaveUp := false
	q.Go(context.Background(), "job", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) { gaveUp = true })

	require.NoError(t, q.Drain(context.Background()))
	require.Equal(t, int32(3), calls.Load())
	require.False(t, gaveUp)
	require.Zero(t, q.Pending())
}

func TestQueue_GivesUpAfterAttempts(t *testing.T) {
	q := New(WithAttempts(2))
	q.sleep = noSleep

	var last error
	q.Go(context.Background(), "job", func(context.Context) error {
		return errors.New("down")
	}, func(err error) { last = err })

	require.NoError(t, q.Drain(context.Background()))
	require.EqualError(t, last, "down")
}

func TestQueue_IgnoresCallerCancellation(t *testing.T) {
	q := New(WithAttempts(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	q.Go(ctx, "job", func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	}, nil)
	require.NoError(t, q.Drain(context.Background()))
	require.NoError(t, sawErr)
}

func TestQueue_DrainRespectsDeadline(t *testing.T) {
	q := New(WithAttempts(1))
	release := make(chan struct{})
	q.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, q.Drain(ctx))
	require.Equal(t, 1, q.Pending())

	close(release)
	require.NoError(t, q.Drain(context.Background()))
}
