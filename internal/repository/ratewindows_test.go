package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	"wellness-agent/internal/ratelimit"
)

func TestRateWindowConditions(t *testing.T) {
	c := mustNewClient(t, newMemTable())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok, err := c.GetWindow(ctx, "user-1", "voice_session")
	require.NoError(t, err)
	require.False(t, ok)

	won, err := c.StartWindow(ctx, "user-1", "voice_session", start, nil)
	require.NoError(t, err)
	require.True(t, won)

	won, err = c.StartWindow(ctx, "user-1", "voice_session", start, nil)
	require.NoError(t, err)
	require.False(t, won, "absent-row condition must fail once the row exists")

	won, err = c.IncrementWindow(ctx, "user-1", "voice_session", start, 2)
	require.NoError(t, err)
	require.True(t, won)

	won, err = c.IncrementWindow(ctx, "user-1", "voice_session", start, 2)
	require.NoError(t, err)
	require.False(t, won, "count is at the limit")

	w, ok, err := c.GetWindow(ctx, "user-1", "voice_session")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, w.Count)
	require.True(t, w.WindowStart.Equal(start))

	stale := start.Add(-time.Hour)
	won, err = c.StartWindow(ctx, "user-1", "voice_session", start.Add(time.Hour), &stale)
	require.NoError(t, err)
	require.False(t, won)

	won, err = c.StartWindow(ctx, "user-1", "voice_session", start.Add(time.Hour), &start)
	require.NoError(t, err)
	require.True(t, won)

	won, err = c.IncrementWindow(ctx, "user-1", "voice_session", start, 5)
	require.NoError(t, err)
	require.False(t, won, "increment against a superseded window must fail")
}

func TestIncrementWindow_UsesReservedWordPlaceholder(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	_, err := c.IncrementWindow(context.Background(), "id", "act", time.UnixMilli(1000), 3)
	require.NoError(t, err)
	require.Equal(t, "count", db.lastUpdateIn.ExpressionAttributeNames["#count"])
	require.Equal(t, "windowStart = :ws AND #count < :limit", aws.ToString(db.lastUpdateIn.ConditionExpression))
	require.Equal(t, "1000", nValue(db.lastUpdateIn.ExpressionAttributeValues[":ws"]))
}

func TestLimiterOverTable_ConcurrentAdmitsExactlyLimit(t *testing.T) {
	c := mustNewClient(t, newMemTable())
	lim, err := ratelimit.New(c)
	require.NoError(t, err)

	const callers, limit = 40, 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := lim.CheckAndConsume(context.Background(), "user-1", "voice_session", limit, time.Hour)
			if err != nil {
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, limit, allowed)
}
