// Package entitlement decides whether a caller may use a feature given its
// subscription state. It performs no I/O.
package entitlement

import (
	"strings"

	"wellness-agent/internal/domain"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNotAuthenticated     Reason = "NOT_AUTHENTICATED"
	ReasonSubscriptionRequired Reason = "SUBSCRIPTION_REQUIRED"
	ReasonProfileNotFound      Reason = "PROFILE_NOT_FOUND"
)

// Decision is Allowed or Denied(Reason).
type Decision struct {
	Allowed bool
	Reason  Reason
	// Bypassed is set when an override, not the subscription, allowed it.
	Bypassed bool
}

// Config is the feature policy. Overrides are explicit configuration.
type Config struct {
	// FreeFeatures are usable by any recognised subscription status.
	FreeFeatures []domain.Feature
	// BypassUserIDs are accounts (QA, app review) treated as subscribed.
	BypassUserIDs []string
	// AllowAll skips subscription checks. Local development only.
	AllowAll bool
}

// Gate applies a Config.
type Gate struct {
	free     map[domain.Feature]struct{}
	bypass   map[string]struct{}
	allowAll bool
}

// NewGate builds a Gate from cfg.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		free:     make(map[domain.Feature]struct{}, len(cfg.FreeFeatures)),
		bypass:   make(map[string]struct{}, len(cfg.BypassUserIDs)),
		allowAll: cfg.AllowAll,
	}
	for _, f := range cfg.FreeFeatures {
		g.free[f] = struct{}{}
	}
	for _, id := range cfg.BypassUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			g.bypass[id] = struct{}{}
		}
	}
	return g
}

// Authorize decides whether id may use feature.
func (g *Gate) Authorize(id domain.Identity, feature domain.Feature) Decision {
	if strings.TrimSpace(id.UserID) == "" {
		return Decision{Reason: ReasonNotAuthenticated}
	}
	if _, ok := g.bypass[id.UserID]; ok {
		return Decision{Allowed: true, Bypassed: true}
	}
	if !id.Subscription.Known() {
		return Decision{Reason: ReasonProfileNotFound}
	}
	if g.allowAll {
		return Decision{Allowed: true, Bypassed: true}
	}
	if _, ok := g.free[feature]; ok {
		return Decision{Allowed: true}
	}
	if id.Subscription.Paid() {
		return Decision{Allowed: true}
	}
	return Decision{Reason: ReasonSubscriptionRequired}
}
