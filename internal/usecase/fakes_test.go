package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wellness-agent/internal/crisis"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/integrations/paramstore"
	"wellness-agent/internal/ratelimit"
)

type mockParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", paramstore.ErrParameterNotFound, name)
	}
	return v, nil
}

func defaultParams() *mockParams {
	return &mockParams{vals: map[string]string{
		"/wellness/config/openai_model": "gpt-mock",
		"/wellness/config/tts_model":    "tts-mock",
		"/wellness/config/tts_voice":    "nova",
	}}
}

type mockLLM struct {
	completion domain.Completion
	err        error
	delay      time.Duration
	calls      int
	lastModel  string
	lastMsgs   []domain.ChatMessage
}

func (m *mockLLM) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (domain.Completion, error) {
	m.calls++
	m.lastModel = model
	m.lastMsgs = messages
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.Completion{}, ctx.Err()
		}
	}
	return m.completion, m.err
}

type mockTTS struct {
	audio []byte
	err   error
	calls int
	model string
	voice string
}

func (m *mockTTS) Synthesize(_ context.Context, model, voice, _ string) ([]byte, error) {
	m.calls++
	m.model, m.voice = model, voice
	return m.audio, m.err
}

type mockMessages struct {
	history  []domain.Message
	histErr  error
	saveErr  error
	saved    [][2]domain.Message
	lastUser string
}

func (m *mockMessages) GetRecentMessages(_ context.Context, userID string, _ int) ([]domain.Message, error) {
	m.lastUser = userID
	return m.history, m.histErr
}

func (m *mockMessages) SaveTurn(_ context.Context, user, reply domain.Message) error {
	m.saved = append(m.saved, [2]domain.Message{user, reply})
	return m.saveErr
}

type mockProfiles struct {
	profile domain.UserProfile
	err     error
}

func (m *mockProfiles) GetProfile(_ context.Context, userID string) (domain.UserProfile, error) {
	if m.err != nil {
		return domain.UserProfile{}, m.err
	}
	p := m.profile
	p.UserID = userID
	return p, nil
}

type mockLedger struct {
	mu         sync.Mutex
	recorded   []domain.CrisisEvent
	escalated  []domain.CrisisEvent
	recordErr  error
	resolveErr error
	resolved   map[string]bool
}

func (m *mockLedger) Record(ctx context.Context, userID string, c domain.RiskClassification, message, action string) (domain.CrisisEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return domain.CrisisEvent{}, errors.New("ledger saw a cancelled context")
	}
	ev := domain.CrisisEvent{
		ID:          fmt.Sprintf("ev-%d", len(m.recorded)+1),
		UserID:      userID,
		Level:       c.Level,
		Message:     message,
		ActionTaken: action,
	}
	m.recorded = append(m.recorded, ev)
	return ev, m.recordErr
}

func (m *mockLedger) Escalate(_ context.Context, ev domain.CrisisEvent) (domain.CrisisEvent, crisis.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalated = append(m.escalated, ev)
	return ev, crisis.OutcomeNoContact, nil
}

func (m *mockLedger) Resolve(_ context.Context, id string, _ domain.Identity) (domain.CrisisEvent, error) {
	if m.resolveErr != nil {
		return domain.CrisisEvent{}, m.resolveErr
	}
	if m.resolved == nil {
		m.resolved = map[string]bool{}
	}
	m.resolved[id] = true
	return domain.CrisisEvent{ID: id, Resolved: true}, nil
}

type mockLimiter struct {
	result ratelimit.Result
	err    error
	calls  int
}

func (m *mockLimiter) Consume(_ context.Context, _, _ string, _ ratelimit.Rule) (ratelimit.Result, error) {
	m.calls++
	if m.err != nil {
		return ratelimit.Result{}, m.err
	}
	return m.result, nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (r *recordingAuditor) Append(_ context.Context, e domain.AuditLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAuditor) last() domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}
