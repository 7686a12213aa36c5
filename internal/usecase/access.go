package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"wellness-agent/internal/audit"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/entitlement"
	"wellness-agent/internal/ratelimit"
)

// Authorizer is the entitlement gate.
type Authorizer interface {
	Authorize(id domain.Identity, feature domain.Feature) entitlement.Decision
}

// Consumer is the rate limiter.
type Consumer interface {
	Consume(ctx context.Context, identifier, action string, rule ratelimit.Rule) (ratelimit.Result, error)
}

// Auditor is the audit log.
type Auditor interface {
	Append(ctx context.Context, e domain.AuditLogEntry)
}

// errLimiterUnavailable marks a limiter store failure. Callers decide
// whether to degrade or fail closed.
var errLimiterUnavailable = errors.New("usecase: rate limiter unavailable")

// AccessGuard runs the gate then the limiter for one feature and writes
// exactly one audit entry for the outcome.
type AccessGuard struct {
	gate    Authorizer
	limiter Consumer
	rules   map[domain.Feature]ratelimit.Rule
	audit   Auditor
	logger  *slog.Logger
}

// NewAccessGuard wires an AccessGuard. Every feature admitted through it
// needs a rule.
func NewAccessGuard(gate Authorizer, limiter Consumer, rules map[domain.Feature]ratelimit.Rule, auditor Auditor, logger *slog.Logger) (*AccessGuard, error) {
	if gate == nil {
		return nil, errors.New("usecase: gate must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: limiter must not be nil")
	}
	if auditor == nil {
		return nil, errors.New("usecase: auditor must not be nil")
	}
	for f, r := range rules {
		if r.Limit <= 0 || r.Window <= 0 {
			return nil, errors.New("usecase: rate rule for " + string(f) + " must be positive")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGuard{gate: gate, limiter: limiter, rules: rules, audit: auditor, logger: logger}, nil
}

// admit returns nil when the call may proceed. Denials come back as *Error;
// a limiter failure wraps errLimiterUnavailable.
func (g *AccessGuard) admit(ctx context.Context, id domain.Identity, feature domain.Feature) error {
	entry := domain.AuditLogEntry{
		UserID:   id.UserID,
		Resource: "feature:" + string(feature),
		Details: map[string]string{
			"subscription": string(id.Subscription),
		},
	}

	d := g.gate.Authorize(id, feature)
	if !d.Allowed {
		entry.Action = audit.ActionAccessDenied
		entry.Severity = domain.SeverityWarn
		entry.Details["reason"] = string(d.Reason)
		g.audit.Append(ctx, entry)
		return newError(ErrorEntitlementDenied, string(d.Reason), nil)
	}
	if d.Bypassed {
		entry.Details["bypassed"] = "true"
	}

	rule, ok := g.rules[feature]
	if !ok {
		entry.Action = audit.ActionAccessDegraded
		entry.Severity = domain.SeverityWarn
		entry.Details["reason"] = "no_rate_rule"
		g.audit.Append(ctx, entry)
		return errLimiterUnavailable
	}

	res, err := g.limiter.Consume(ctx, id.UserID, string(feature), rule)
	if err != nil {
		g.logger.Error("rate limiter unavailable", "err", err, "user_id", id.UserID, "feature", string(feature))
		entry.Action = audit.ActionAccessDegraded
		entry.Severity = domain.SeverityWarn
		entry.Details["reason"] = "limiter_error"
		g.audit.Append(ctx, entry)
		return errors.Join(errLimiterUnavailable, err)
	}
	if !res.Allowed {
		entry.Action = audit.ActionRateLimitRejected
		entry.Severity = domain.SeverityWarn
		entry.Details["limit"] = strconv.Itoa(rule.Limit)
		entry.Details["window"] = rule.Window.String()
		entry.Details["retry_after"] = res.RetryAfter.Round(time.Second).String()
		g.audit.Append(ctx, entry)
		e := newError(ErrorRateLimitExceeded, "rate_limited", nil)
		e.RetryAfter = res.RetryAfter
		return e
	}

	entry.Action = audit.ActionAccessAllowed
	entry.Details["count"] = strconv.Itoa(res.Count)
	entry.Details["remaining"] = strconv.Itoa(res.Remaining)
	g.audit.Append(ctx, entry)
	return nil
}
