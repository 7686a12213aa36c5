package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wellness-agent/internal/integrations/paramstore"
)

const (
	defaultTTSModel = "tts-1"
	defaultTTSVoice = "alloy"

	defaultSettingsRetryBackoff = 30 * time.Second
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Settings is the runtime configuration kept in Parameter Store.
type Settings struct {
	OpenAIModel  string
	TTSModel     string
	TTSVoice     string
	PinnedPrompt string
	ResourceText string
}

// SettingsCache loads Settings once per process. A failed load is
// remembered for retryBackoff; requests inside that window get the same
// error without calling Parameter Store.
type SettingsCache struct {
	params       ParamGetter
	paramPrefix  string
	retryBackoff time.Duration
	now          func() time.Time

	cacheMu     sync.RWMutex
	cacheLoaded bool
	settings    Settings
	failedAt    time.Time
	failErr     error
}

func NewSettingsCache(p ParamGetter, paramPrefix string) (*SettingsCache, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &SettingsCache{
		params:       p,
		paramPrefix:  paramPrefix,
		retryBackoff: defaultSettingsRetryBackoff,
		now:          time.Now,
	}, nil
}

// Get returns the cached settings, loading them on first use.
func (c *SettingsCache) Get(ctx context.Context) (Settings, error) {
	c.cacheMu.RLock()
	if c.cacheLoaded {
		s := c.settings
		c.cacheMu.RUnlock()
		return s, nil
	}
	if err := c.recentFailure(); err != nil {
		c.cacheMu.RUnlock()
		return Settings{}, err
	}
	c.cacheMu.RUnlock()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cacheLoaded {
		return c.settings, nil
	}
	if err := c.recentFailure(); err != nil {
		return Settings{}, err
	}

	s, err := c.load(ctx)
	if err != nil {
		c.failedAt, c.failErr = c.now(), err
		return Settings{}, err
	}
	c.settings = s
	c.cacheLoaded = true
	c.failErr = nil
	return s, nil
}

// recentFailure returns the last load error while it is inside the back-off
// window. Callers hold cacheMu.
func (c *SettingsCache) recentFailure() error {
	if c.failErr == nil || c.now().Sub(c.failedAt) >= c.retryBackoff {
		return nil
	}
	return c.failErr
}

func (c *SettingsCache) load(ctx context.Context) (Settings, error) {
	var s Settings
	var err error

	s.OpenAIModel, err = c.params.GetParameter(ctx, c.paramPrefix+"/config/openai_model")
	if err != nil {
		return Settings{}, fmt.Errorf("usecase: load openai model: %w", err)
	}
	if s.TTSModel, err = c.optional(ctx, "/config/tts_model", defaultTTSModel); err != nil {
		return Settings{}, fmt.Errorf("usecase: load tts model: %w", err)
	}
	if s.TTSVoice, err = c.optional(ctx, "/config/tts_voice", defaultTTSVoice); err != nil {
		return Settings{}, fmt.Errorf("usecase: load tts voice: %w", err)
	}
	if s.PinnedPrompt, err = c.optional(ctx, "/policy/pinned_prompt", ""); err != nil {
		return Settings{}, fmt.Errorf("usecase: load pinned prompt: %w", err)
	}
	if s.ResourceText, err = c.optional(ctx, "/crisis/resource_text", ""); err != nil {
		return Settings{}, fmt.Errorf("usecase: load resource text: %w", err)
	}
	return s, nil
}

// optional falls back to def only when the parameter does not exist.
func (c *SettingsCache) optional(ctx context.Context, suffix, def string) (string, error) {
	v, err := c.params.GetParameter(ctx, c.paramPrefix+suffix)
	if errors.Is(err, paramstore.ErrParameterNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return v, nil
}
