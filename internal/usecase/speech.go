package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"wellness-agent/internal/domain"
)

const defaultMaxSpeechLength = 4096

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, model, voice, text string) ([]byte, error)
}

// SpeechService turns reply text into audio.
type SpeechService struct {
	guard    *AccessGuard
	tts      SpeechSynthesizer
	settings *SettingsCache
	logger   *slog.Logger
	timeout  time.Duration
	maxLen   int
}

func NewSpeechService(guard *AccessGuard, tts SpeechSynthesizer, settings *SettingsCache, timeout time.Duration, logger *slog.Logger) (*SpeechService, error) {
	if guard == nil {
		return nil, errors.New("usecase: access guard must not be nil")
	}
	if tts == nil {
		return nil, errors.New("usecase: speech synthesizer must not be nil")
	}
	if settings == nil {
		return nil, errors.New("usecase: settings must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechService{
		guard:    guard,
		tts:      tts,
		settings: settings,
		logger:   logger,
		timeout:  timeout,
		maxLen:   defaultMaxSpeechLength,
	}, nil
}

// Synthesize returns MP3 audio for text. Provider errors never reach the
// caller verbatim.
func (s *SpeechService) Synthesize(ctx context.Context, id domain.Identity, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(ErrorValidation, "empty_text", nil)
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return nil, newError(ErrorValidation, "text_too_long", nil)
	}

	if err := s.guard.admit(ctx, id, domain.FeatureSpeechSynthesis); err != nil {
		if ue, ok := AsError(err); ok {
			return nil, ue
		}
		return nil, newError(ErrorPersistence, "rate_limiter_unavailable", err)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("settings unavailable for speech", "err", err, "user_id", id.UserID)
		return nil, newError(ErrorProviderUnavailable, "settings_unavailable", err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	audio, err := s.tts.Synthesize(sctx, settings.TTSModel, settings.TTSVoice, text)
	if err != nil {
		s.logger.Warn("speech provider failed", "err", err, "user_id", id.UserID)
		return nil, newError(ErrorProviderUnavailable, "tts_error", err)
	}
	return audio, nil
}
