package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellness-agent/internal/audit"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/entitlement"
	"wellness-agent/internal/ratelimit"
)

func newGuard(t *testing.T, limiter Consumer, auditor Auditor) *AccessGuard {
	t.Helper()
	g, err := NewAccessGuard(
		entitlement.NewGate(entitlement.Config{FreeFeatures: []domain.Feature{domain.FeatureAIResponse}}),
		limiter,
		map[domain.Feature]ratelimit.Rule{
			domain.FeatureAIResponse:   {Limit: 30, Window: time.Hour},
			domain.FeatureVoiceSession: {Limit: 5, Window: time.Hour},
		},
		auditor,
		nil,
	)
	require.NoError(t, err)
	return g
}

func TestNewAccessGuard_Validation(t *testing.T) {
	gate := entitlement.NewGate(entitlement.Config{})
	_, err := NewAccessGuard(nil, &mockLimiter{}, nil, &recordingAuditor{}, nil)
	require.Error(t, err)
	_, err = NewAccessGuard(gate, nil, nil, &recordingAuditor{}, nil)
	require.Error(t, err)
	_, err = NewAccessGuard(gate, &mockLimiter{}, nil, nil, nil)
	require.Error(t, err)
	_, err = NewAccessGuard(gate, &mockLimiter{}, map[domain.Feature]ratelimit.Rule{domain.FeatureAIResponse: {}}, &recordingAuditor{}, nil)
	require.Error(t, err)
}

func TestAdmit_Outcomes(t *testing.T) {
	paid := domain.Identity{UserID: "u1", Subscription: domain.SubscriptionActive}
	cases := []struct {
		name    string
		id      domain.Identity
		feature domain.Feature
		limiter *mockLimiter
		code    ErrorCode
		limErr  bool
		action  string
	}{
		{
			name: "allowed", id: paid, feature: domain.FeatureVoiceSession,
			limiter: &mockLimiter{result: ratelimit.Result{Allowed: true, Count: 1, Remaining: 4}},
			action:  audit.ActionAccessAllowed,
		},
		{
			name: "free user denied paid feature", id: domain.Identity{UserID: "u1", Subscription: domain.SubscriptionFree},
			feature: domain.FeatureVoiceSession, limiter: &mockLimiter{},
			code: ErrorEntitlementDenied, action: audit.ActionAccessDenied,
		},
		{
			name: "anonymous denied", id: domain.Identity{}, feature: domain.FeatureAIResponse,
			limiter: &mockLimiter{}, code: ErrorEntitlementDenied, action: audit.ActionAccessDenied,
		},
		{
			name: "rate limited", id: paid, feature: domain.FeatureVoiceSession,
			limiter: &mockLimiter{result: ratelimit.Result{RetryAfter: 90 * time.Second}},
			code:    ErrorRateLimitExceeded, action: audit.ActionRateLimitRejected,
		},
		{
			name: "limiter down", id: paid, feature: domain.FeatureVoiceSession,
			limiter: &mockLimiter{err: errors.New("throttled")},
			limErr:  true, action: audit.ActionAccessDegraded,
		},
		{
			name: "no rule", id: paid, feature: domain.FeatureSpeechSynthesis,
			limiter: &mockLimiter{}, limErr: true, action: audit.ActionAccessDegraded,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auditor := &recordingAuditor{}
			g := newGuard(t, tc.limiter, auditor)
			err := g.admit(context.Background(), tc.id, tc.feature)

			require.Equal(t, []string{tc.action}, auditor.actions())
			switch {
			case tc.code != "":
				ue, ok := AsError(err)
				require.True(t, ok)
				require.Equal(t, tc.code, ue.Code)
			case tc.limErr:
				require.ErrorIs(t, err, errLimiterUnavailable)
				_, ok := AsError(err)
				require.False(t, ok)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestAdmit_RateLimitCarriesRetryAfter(t *testing.T) {
	auditor := &recordingAuditor{}
	g := newGuard(t, &mockLimiter{result: ratelimit.Result{RetryAfter: 90 * time.Second}}, auditor)
	err := g.admit(context.Background(), domain.Identity{UserID: "u1", Subscription: domain.SubscriptionTrial}, domain.FeatureVoiceSession)
	ue, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, 90*time.Second, ue.RetryAfter)
	require.Equal(t, "5", auditor.last().Details["limit"])
	require.Equal(t, "1m30s", auditor.last().Details["retry_after"])
}

func TestAdmit_DeniedNeverConsumes(t *testing.T) {
	limiter := &mockLimiter{result: ratelimit.Result{Allowed: true}}
	g := newGuard(t, limiter, &recordingAuditor{})
	_ = g.admit(context.Background(), domain.Identity{UserID: "u1", Subscription: domain.SubscriptionExpired}, domain.FeatureVoiceSession)
	require.Zero(t, limiter.calls)
}
