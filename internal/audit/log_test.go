package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellness-agent/internal/domain"
	"wellness-agent/internal/retry"
)

type fakeSink struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	fails   int
	calls   int
}

func (f *fakeSink) AppendAuditEntry(_ context.Context, e domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return errors.New("throttled")
	}
	f.entries = append(f.entries, e)
	return nil
}

func newTestLog(t *testing.T, sink Sink) *Log {
	t.Helper()
	l, err := New(sink, retry.New(retry.WithAttempts(3), retry.WithBackoff(0)), nil)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	l.newID = func() string { return "audit-1" }
	return l
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, retry.New(), nil)
	require.Error(t, err)
	_, err = New(&fakeSink{}, nil, nil)
	require.Error(t, err)
}

func TestAppend_StampsEntry(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLog(t, sink)

	l.Append(context.Background(), domain.AuditLogEntry{UserID: "u1", Action: ActionAccessAllowed, Resource: "feature:ai_response"})
	require.Len(t, sink.entries, 1)
	got := sink.entries[0]
	require.Equal(t, "audit-1", got.ID)
	require.Equal(t, domain.SeverityInfo, got.Severity)
	require.Equal(t, 2026, got.CreatedAt.Year())
}

func TestAppend_RetriesInBackgroundWithSameID(t *testing.T) {
	sink := &fakeSink{fails: 2}
	l := newTestLog(t, sink)

	l.Append(context.Background(), domain.AuditLogEntry{Action: ActionCrisisCreated})
	require.NoError(t, l.Drain(context.Background()))

	require.Len(t, sink.entries, 1)
	require.Equal(t, "audit-1", sink.entries[0].ID)
	require.Equal(t, 3, sink.calls)
}

func TestAppend_GivesUpWithoutPanicking(t *testing.T) {
	sink := &fakeSink{fails: 100}
	l := newTestLog(t, sink)

	l.Append(context.Background(), domain.AuditLogEntry{Action: ActionCrisisNoContact, Severity: domain.SeverityHigh})
	require.NoError(t, l.Drain(context.Background()))
	require.Empty(t, sink.entries)
}

func TestAppend_CancelledRequestStillWrites(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLog(t, sink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.Append(ctx, domain.AuditLogEntry{Action: ActionCrisisCreated})
	require.Len(t, sink.entries, 1)
}
