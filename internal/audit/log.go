// Package audit is the append-only record of every access and safety
// decision the service makes.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wellness-agent/internal/domain"
	"wellness-agent/internal/retry"
)

// Actions written by the service.
const (
	ActionAccessAllowed      = "access.allowed"
	ActionAccessDenied       = "access.denied"
	ActionRateLimitRejected  = "rate_limit.rejected"
	ActionAccessDegraded     = "access.degraded"
	ActionResponseDecided    = "response.decided"
	ActionCrisisCreated      = "crisis_event.created"
	ActionCrisisCreateFailed = "crisis_event.create_failed"
	ActionCrisisEscalated    = "crisis_event.escalated"
	ActionCrisisNoContact    = "crisis_event.no_emergency_contact"
	ActionCrisisEscalateFail = "crisis_event.escalation_failed"
	ActionCrisisResolved     = "crisis_event.resolved"
	ActionCrisisResolveNoop  = "crisis_event.resolve_noop"
	ActionCrisisResolveDeny  = "crisis_event.resolve_denied"
)

const appendTimeout = 2 * time.Second

// Sink persists entries. It exposes no update or delete.
type Sink interface {
	AppendAuditEntry(ctx context.Context, e domain.AuditLogEntry) error
}

// Log stamps and appends entries. A failed write is retried in the
// background; Append itself never fails and never blocks on retries.
type Log struct {
	sink   Sink
	queue  *retry.Queue
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New builds a Log writing to sink and retrying through queue.
func New(sink Sink, queue *retry.Queue, logger *slog.Logger) (*Log, error) {
	if sink == nil {
		return nil, errors.New("audit: sink must not be nil")
	}
	if queue == nil {
		return nil, errors.New("audit: retry queue must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		sink:   sink,
		queue:  queue,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Append records e. ID and CreatedAt are filled in when empty, so a retried
// write reuses the same ID and the sink can deduplicate it.
func (l *Log) Append(ctx context.Context, e domain.AuditLogEntry) {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.Severity == "" {
		e.Severity = domain.SeverityInfo
	}

	ctx = context.WithoutCancel(ctx)
	writeCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	err := l.sink.AppendAuditEntry(writeCtx, e)
	cancel()
	if err == nil {
		return
	}

	l.logger.Warn("audit append failed; retrying in background", "audit_id", e.ID, "action", e.Action, "err", err)
	l.queue.Go(ctx, "audit:"+e.Action, func(ctx context.Context) error {
		return l.sink.AppendAuditEntry(ctx, e)
	}, func(err error) {
		// Last resort: the structured log line is the record.
		l.logger.Error("audit entry lost from store",
			"err", err,
			"audit_id", e.ID,
			"user_id", e.UserID,
			"action", e.Action,
			"resource", e.Resource,
			"severity", string(e.Severity),
			"details", e.Details,
			"created_at", e.CreatedAt.Format(time.RFC3339Nano),
		)
	})
}

// Drain waits for background retries.
func (l *Log) Drain(ctx context.Context) error {
	return l.queue.Drain(ctx)
}
