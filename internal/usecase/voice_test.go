package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellness-agent/internal/domain"
	"wellness-agent/internal/ratelimit"
)

func TestVoiceAuthorize_Grant(t *testing.T) {
	limiter := &mockLimiter{result: ratelimit.Result{Allowed: true, Count: 1, Remaining: 4}}
	svc, err := NewVoiceService(newGuard(t, limiter, &recordingAuditor{}), 0)
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	grant, err := svc.Authorize(context.Background(), domain.Identity{UserID: "u1", Subscription: domain.SubscriptionActive})
	require.NoError(t, err)
	require.NotEmpty(t, grant.SessionID)
	require.Equal(t, fixed.Add(15*time.Minute), grant.ExpiresAt)
}

func TestVoiceAuthorize_FreeUserDenied(t *testing.T) {
	svc, err := NewVoiceService(newGuard(t, &mockLimiter{}, &recordingAuditor{}), time.Minute)
	require.NoError(t, err)
	_, err = svc.Authorize(context.Background(), domain.Identity{UserID: "u1", Subscription: domain.SubscriptionFree})
	ue, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, ErrorEntitlementDenied, ue.Code)
	require.Equal(t, "SUBSCRIPTION_REQUIRED", ue.Reason)
}

func TestVoiceAuthorize_LimiterDownFailsClosed(t *testing.T) {
	svc, err := NewVoiceService(newGuard(t, &mockLimiter{err: errors.New("boom")}, &recordingAuditor{}), time.Minute)
	require.NoError(t, err)
	_, err = svc.Authorize(context.Background(), domain.Identity{UserID: "u1", Subscription: domain.SubscriptionActive})
	ue, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, ErrorPersistence, ue.Code)
	require.Equal(t, "rate_limiter_unavailable", ue.Reason)
}

func TestNewVoiceService_NilGuard(t *testing.T) {
	_, err := NewVoiceService(nil, time.Minute)
	require.Error(t, err)
}
