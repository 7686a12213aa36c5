package usecase

import (
	"context"
	"errors"
	"time"

	"wellness-agent/internal/domain"
)

const defaultVoiceSessionTTL = 15 * time.Minute

// VoiceSessionGrant authorises the client to open one realtime voice session.
type VoiceSessionGrant struct {
	SessionID string
	ExpiresAt time.Time
}

// VoiceService issues voice-session grants.
type VoiceService struct {
	guard *AccessGuard
	ttl   time.Duration
	now   func() time.Time
}

func NewVoiceService(guard *AccessGuard, sessionTTL time.Duration) (*VoiceService, error) {
	if guard == nil {
		return nil, errors.New("usecase: access guard must not be nil")
	}
	if sessionTTL <= 0 {
		sessionTTL = defaultVoiceSessionTTL
	}
	return &VoiceService{guard: guard, ttl: sessionTTL, now: time.Now}, nil
}

// Authorize consumes one voice_session admission. A limiter failure fails
// closed: voice sessions are billed and carry no safety payload.
func (s *VoiceService) Authorize(ctx context.Context, id domain.Identity) (VoiceSessionGrant, error) {
	if err := s.guard.admit(ctx, id, domain.FeatureVoiceSession); err != nil {
		if ue, ok := AsError(err); ok {
			return VoiceSessionGrant{}, ue
		}
		return VoiceSessionGrant{}, newError(ErrorPersistence, "rate_limiter_unavailable", err)
	}
	return VoiceSessionGrant{
		SessionID: newUUID(),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}, nil
}
