package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSettingsCache_LoadsOnceAndDefaults(t *testing.T) {
	params := &mockParams{vals: map[string]string{
		"/wellness/config/openai_model":  "gpt-mock",
		"/wellness/config/tts_voice":     "   ",
		"/wellness/policy/pinned_prompt": "Be brief.",
	}}
	c, err := NewSettingsCache(params, "/wellness/")
	require.NoError(t, err)

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, Settings{
		OpenAIModel:  "gpt-mock",
		TTSModel:     "tts-1",
		TTSVoice:     "alloy",
		PinnedPrompt: "Be brief.",
	}, s)

	calls := params.calls
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, calls, params.calls)
}

func TestSettingsCache_MissingModelFails(t *testing.T) {
	c, err := NewSettingsCache(&mockParams{vals: map[string]string{}}, "/wellness")
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.Error(t, err)
}

func TestSettingsCache_ErrorRetriedAfterBackoff(t *testing.T) {
	params := defaultParams()
	params.err = errors.New("ssm throttled")
	c, err := NewSettingsCache(params, "/wellness")
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err = c.Get(context.Background())
	require.ErrorContains(t, err, "ssm throttled")
	calls := params.calls

	params.err = nil
	for i := 0; i < 50; i++ {
		_, err = c.Get(context.Background())
		require.ErrorContains(t, err, "ssm throttled")
	}
	require.Equal(t, calls, params.calls)

	now = now.Add(defaultSettingsRetryBackoff)
	s, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gpt-mock", s.OpenAIModel)
}

func TestSettingsCache_OptionalKeyErrorIsNotDefaulted(t *testing.T) {
	c, err := NewSettingsCache(&failingOptional{}, "/wellness")
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.Error(t, err)
}

func TestSettingsCache_ConcurrentGet(t *testing.T) {
	c, err := NewSettingsCache(defaultParams(), "/wellness")
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Get(context.Background())
			require.NoError(t, err)
			require.Equal(t, "gpt-mock", s.OpenAIModel)
		}()
	}
	wg.Wait()
}

func TestNewSettingsCache_Validation(t *testing.T) {
	_, err := NewSettingsCache(nil, "/wellness")
	require.Error(t, err)
	_, err = NewSettingsCache(defaultParams(), " / ")
	require.Error(t, err)
}

type failingOptional struct{}

func (failingOptional) GetParameter(_ context.Context, name string) (string, error) {
	if name == "/wellness/config/openai_model" {
		return "gpt-mock", nil
	}
	return "", errors.New("access denied")
}
