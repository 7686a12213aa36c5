// Package crisis keeps the evidentiary record of messages that crossed the
// crisis threshold and drives escalation and resolution of those records.
//
// A record moves NONE -> OPEN -> RESOLVED. EmergencyContacted is a flag on
// an open record, not a state. Level and the message snapshot never change
// after creation, and records are never deleted.
package crisis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wellness-agent/internal/audit"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/retry"
)

var (
	// ErrBelowThreshold is returned by Record for levels under MEDIUM.
	ErrBelowThreshold = errors.New("crisis: classification below crisis threshold")
	// ErrNotEscalatable is returned by Escalate for non-CRITICAL events.
	ErrNotEscalatable = errors.New("crisis: only CRITICAL events are escalated")
	// ErrUnauthorized is returned by Resolve when the caller may not resolve.
	ErrUnauthorized = errors.New("crisis: caller is not authorized to resolve events")
)

const defaultNotifyTimeout = 5 * time.Second

// Store persists crisis events. There is no delete.
type Store interface {
	CreateCrisisEvent(ctx context.Context, ev domain.CrisisEvent) error
	GetCrisisEvent(ctx context.Context, id string) (domain.CrisisEvent, error)
	MarkEmergencyContacted(ctx context.Context, id, contactID string, at time.Time) error
	// SetEmergencyContactID stores the targeted contact while leaving the
	// contacted flag unset.
	SetEmergencyContactID(ctx context.Context, id, contactID string, at time.Time) error
	// MarkResolved reports false if the event was already resolved.
	MarkResolved(ctx context.Context, id string, at time.Time) (bool, error)
}

// Contacts looks up the emergency contact on file. An empty id means none.
type Contacts interface {
	EmergencyContactID(ctx context.Context, userID string) (string, error)
}

// Notification is the payload sent to an emergency contact channel.
type Notification struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier delivers a notification. A nil error means acknowledged delivery.
type Notifier interface {
	Send(ctx context.Context, contactID string, n Notification) error
}

// Auditor is the audit sink.
type Auditor interface {
	Append(ctx context.Context, e domain.AuditLogEntry)
}

// Outcome of an escalation attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeNoContact Outcome = "no_contact"
	OutcomeFailed    Outcome = "failed"
)

// Config tunes the ledger.
type Config struct {
	// ResolverRoles may resolve events. Defaults to crisis_responder, admin.
	ResolverRoles []string
	NotifyTimeout time.Duration
}

// Ledger implements the crisis event state machine.
type Ledger struct {
	store    Store
	contacts Contacts
	notifier Notifier
	audit    Auditor
	queue    *retry.Queue
	logger   *slog.Logger

	resolverRoles map[string]struct{}
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string
}

// NewLedger wires a Ledger. queue receives persistence retries.
func NewLedger(store Store, contacts Contacts, notifier Notifier, auditor Auditor, queue *retry.Queue, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("crisis: store must not be nil")
	}
	if contacts == nil {
		return nil, errors.New("crisis: contacts must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("crisis: notifier must not be nil")
	}
	if auditor == nil {
		return nil, errors.New("crisis: auditor must not be nil")
	}
	if queue == nil {
		return nil, errors.New("crisis: retry queue must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	roles := cfg.ResolverRoles
	if len(roles) == 0 {
		roles = []string{"crisis_responder", "admin"}
	}
	l := &Ledger{
		store:         store,
		contacts:      contacts,
		notifier:      notifier,
		audit:         auditor,
		queue:         queue,
		logger:        logger,
		resolverRoles: make(map[string]struct{}, len(roles)),
		notifyTimeout: cfg.NotifyTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	if l.notifyTimeout <= 0 {
		l.notifyTimeout = defaultNotifyTimeout
	}
	for _, r := range roles {
		l.resolverRoles[strings.TrimSpace(r)] = struct{}{}
	}
	return l, nil
}

// Record opens a new event for a message classified MEDIUM or above. Every
// qualifying message gets its own event. If the write fails it is retried in
// the background and the returned error wraps the failure; the returned
// event is still valid for the caller to act on.
func (l *Ledger) Record(ctx context.Context, userID string, c domain.RiskClassification, message, actionTaken string) (domain.CrisisEvent, error) {
	if !c.Level.AtLeast(domain.LevelMedium) {
		return domain.CrisisEvent{}, ErrBelowThreshold
	}
	ctx = context.WithoutCancel(ctx)
	now := l.now().UTC()
	ev := domain.CrisisEvent{
		ID:          l.newID(),
		UserID:      userID,
		Level:       c.Level,
		Message:     message,
		ActionTaken: actionTaken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry := domain.AuditLogEntry{
		UserID:   userID,
		Action:   audit.ActionCrisisCreated,
		Resource: crisisResource(ev.ID),
		Severity: severityFor(c.Level),
		Details: map[string]string{
			"level":        c.Level.String(),
			"intensity":    strconv.Itoa(c.Intensity),
			"triggers":     strings.Join(c.TriggerNames(), ","),
			"high_risk":    strconv.FormatBool(c.HighRisk),
			"action_taken": actionTaken,
		},
	}

	if err := l.create(ctx, ev); err != nil {
		l.logger.Error("crisis event write failed; retrying in background", "err", err, "crisis_event_id", ev.ID, "level", ev.Level.String())
		l.queue.Go(ctx, "crisis:create", func(ctx context.Context) error {
			return l.create(ctx, ev)
		}, nil)
		entry.Action = audit.ActionCrisisCreateFailed
		entry.Severity = domain.SeverityHigh
		entry.Details["follow_up"] = "required"
		l.audit.Append(ctx, entry)
		return ev, fmt.Errorf("crisis: record: %w", err)
	}
	l.audit.Append(ctx, entry)
	return ev, nil
}

func (l *Ledger) create(ctx context.Context, ev domain.CrisisEvent) error {
	err := l.store.CreateCrisisEvent(ctx, ev)
	if errors.Is(err, domain.ErrConflict) {
		// Already written by an earlier attempt whose ack was lost.
		return nil
	}
	return err
}

// Escalate notifies the emergency contact on file for a CRITICAL event.
// EmergencyContacted is only set on acknowledged delivery. Without a
// contact, a high-severity audit entry flags the event for human follow-up.
func (l *Ledger) Escalate(ctx context.Context, ev domain.CrisisEvent) (domain.CrisisEvent, Outcome, error) {
	if ev.Level != domain.LevelCritical {
		return ev, "", ErrNotEscalatable
	}
	ctx = context.WithoutCancel(ctx)
	entry := domain.AuditLogEntry{
		UserID:   ev.UserID,
		Resource: crisisResource(ev.ID),
		Severity: domain.SeverityHigh,
		Details:  map[string]string{"level": ev.Level.String()},
	}

	contactID, err := l.contacts.EmergencyContactID(ctx, ev.UserID)
	if err != nil {
		entry.Action = audit.ActionCrisisEscalateFail
		entry.Details["reason"] = "contact_lookup_failed"
		entry.Details["follow_up"] = "required"
		l.audit.Append(ctx, entry)
		return ev, OutcomeFailed, fmt.Errorf("crisis: escalate: lookup contact: %w", err)
	}
	if strings.TrimSpace(contactID) == "" {
		entry.Action = audit.ActionCrisisNoContact
		entry.Details["follow_up"] = "required"
		l.audit.Append(ctx, entry)
		return ev, OutcomeNoContact, nil
	}
	entry.Details["emergency_contact_id"] = contactID

	sendCtx, cancel := context.WithTimeout(ctx, l.notifyTimeout)
	err = l.notifier.Send(sendCtx, contactID, Notification{
		EventID:   ev.ID,
		UserID:    ev.UserID,
		Level:     ev.Level.String(),
		CreatedAt: ev.CreatedAt,
	})
	cancel()
	at := l.now().UTC()
	ev.EmergencyContactID = contactID
	ev.UpdatedAt = at
	if err != nil {
		if serr := l.store.SetEmergencyContactID(ctx, ev.ID, contactID, at); serr != nil {
			l.logger.Error("crisis contact id write failed; retrying in background", "err", serr, "crisis_event_id", ev.ID)
			l.queue.Go(ctx, "crisis:contact_id", func(ctx context.Context) error {
				return l.store.SetEmergencyContactID(ctx, ev.ID, contactID, at)
			}, nil)
			entry.Details["persisted"] = "false"
		}
		entry.Action = audit.ActionCrisisEscalateFail
		entry.Details["reason"] = "delivery_failed"
		entry.Details["follow_up"] = "required"
		l.audit.Append(ctx, entry)
		return ev, OutcomeFailed, fmt.Errorf("crisis: escalate: send: %w", err)
	}

	ev.EmergencyContacted = true
	entry.Action = audit.ActionCrisisEscalated

	if err := l.store.MarkEmergencyContacted(ctx, ev.ID, contactID, at); err != nil {
		l.logger.Error("crisis escalation flag write failed; retrying in background", "err", err, "crisis_event_id", ev.ID)
		l.queue.Go(ctx, "crisis:contacted", func(ctx context.Context) error {
			return l.store.MarkEmergencyContacted(ctx, ev.ID, contactID, at)
		}, nil)
		entry.Details["persisted"] = "false"
	}
	l.audit.Append(ctx, entry)
	return ev, OutcomeDelivered, nil
}

// Resolve marks an event resolved. Resolving a resolved event is a no-op.
// Only callers holding a resolver role may resolve.
func (l *Ledger) Resolve(ctx context.Context, id string, resolver domain.Identity) (domain.CrisisEvent, error) {
	ctx = context.WithoutCancel(ctx)
	entry := domain.AuditLogEntry{
		UserID:   resolver.UserID,
		Resource: crisisResource(id),
		Details:  map[string]string{"resolver_role": resolver.Role},
	}
	if _, ok := l.resolverRoles[resolver.Role]; !ok || strings.TrimSpace(resolver.UserID) == "" {
		entry.Action = audit.ActionCrisisResolveDeny
		entry.Severity = domain.SeverityWarn
		l.audit.Append(ctx, entry)
		return domain.CrisisEvent{}, ErrUnauthorized
	}

	ev, err := l.store.GetCrisisEvent(ctx, id)
	if err != nil {
		return domain.CrisisEvent{}, fmt.Errorf("crisis: resolve: %w", err)
	}
	entry.Details["level"] = ev.Level.String()
	entry.Details["subject_user_id"] = ev.UserID

	if ev.Resolved {
		entry.Action = audit.ActionCrisisResolveNoop
		l.audit.Append(ctx, entry)
		return ev, nil
	}

	at := l.now().UTC()
	changed, err := l.store.MarkResolved(ctx, id, at)
	if err != nil {
		return domain.CrisisEvent{}, fmt.Errorf("crisis: resolve: %w", err)
	}
	if !changed {
		// A concurrent resolve got there first.
		entry.Action = audit.ActionCrisisResolveNoop
		l.audit.Append(ctx, entry)
		return l.reload(ctx, ev)
	}

	ev.Resolved = true
	ev.UpdatedAt = at
	entry.Action = audit.ActionCrisisResolved
	l.audit.Append(ctx, entry)
	return ev, nil
}

func (l *Ledger) reload(ctx context.Context, fallback domain.CrisisEvent) (domain.CrisisEvent, error) {
	ev, err := l.store.GetCrisisEvent(ctx, fallback.ID)
	if err != nil {
		fallback.Resolved = true
		return fallback, nil
	}
	return ev, nil
}

func crisisResource(id string) string {
	return "crisis_event:" + id
}

func severityFor(level domain.CrisisLevel) domain.Severity {
	if level.AtLeast(domain.LevelHigh) {
		return domain.SeverityHigh
	}
	return domain.SeverityWarn
}
