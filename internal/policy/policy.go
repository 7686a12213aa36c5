// Package policy chooses how to answer a classified message: generate a
// reply, offer a coping exercise, or fall back to crisis resources.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"wellness-agent/internal/domain"
)

// Strategy is the chosen response kind.
type Strategy string

const (
	StrategyGenerate       Strategy = "GENERATE_RESPONSE"
	StrategyCopingExercise Strategy = "OFFER_COPING_EXERCISE"
	StrategyCrisisFallback Strategy = "CRISIS_FALLBACK"
)

// Mode is the interaction mode of the request.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// ParseMode accepts "", "text" or "voice".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeText:
		return ModeText, nil
	case ModeVoice:
		return ModeVoice, nil
	}
	return "", fmt.Errorf("policy: unknown mode %q", s)
}

const (
	defaultHighIntensityThreshold = 7
	crisisIntro                   = "I'm really sorry you're feeling this way, and I'm glad you told me. Your safety matters most right now."
)

// Config tunes the policy.
type Config struct {
	// HighIntensityThreshold: HIGH messages above it may get an exercise.
	HighIntensityThreshold int
	ResourceText           string
	PinnedPrompt           string
	Catalog                []domain.Exercise
	SupportLines           []string
	RetryLines             []string
}

// Decision is the outcome of Decide.
type Decision struct {
	Strategy Strategy
	Level    domain.CrisisLevel
	Exercise *domain.Exercise
	Prompt   PromptContext
	// Reply is set for strategies that need no provider call.
	Reply string
}

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	threshold    int
	resourceText string
	pinnedPrompt string
	catalog      []domain.Exercise
	support      []string
	retryLines   []string
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Policy, error) {
	p := &Policy{
		threshold:    cfg.HighIntensityThreshold,
		resourceText: strings.TrimSpace(cfg.ResourceText),
		pinnedPrompt: strings.TrimSpace(cfg.PinnedPrompt),
		catalog:      cfg.Catalog,
		support:      cfg.SupportLines,
		retryLines:   cfg.RetryLines,
	}
	if p.threshold == 0 {
		p.threshold = defaultHighIntensityThreshold
	}
	if p.threshold < 0 || p.threshold > 10 {
		return nil, fmt.Errorf("policy: high intensity threshold %d out of range [0,10]", p.threshold)
	}
	if p.resourceText == "" {
		p.resourceText = DefaultResourceText
	}
	if p.catalog == nil {
		p.catalog = DefaultCatalog()
	}
	if len(p.support) == 0 {
		p.support = defaultSupportLines
	}
	if len(p.retryLines) == 0 {
		p.retryLines = defaultRetryLines
	}
	seen := make(map[string]struct{}, len(p.catalog))
	for _, ex := range p.catalog {
		if strings.TrimSpace(ex.ID) == "" {
			return nil, errors.New("policy: exercise id must not be empty")
		}
		if _, dup := seen[ex.ID]; dup {
			return nil, fmt.Errorf("policy: duplicate exercise id %q", ex.ID)
		}
		seen[ex.ID] = struct{}{}
	}
	return p, nil
}

// With returns a copy using the given resource text and pinned prompt when
// they are non-empty.
func (p *Policy) With(resourceText, pinnedPrompt string) *Policy {
	cp := *p
	if s := strings.TrimSpace(resourceText); s != "" {
		cp.resourceText = s
	}
	if s := strings.TrimSpace(pinnedPrompt); s != "" {
		cp.pinnedPrompt = s
	}
	return &cp
}

// ResourceText returns the crisis resource message.
func (p *Policy) ResourceText() string { return p.resourceText }

// Decide applies the response rules in priority order:
//  1. CRITICAL always falls back to crisis resources.
//  2. HIGH above the intensity threshold with triggers offers a matching
//     exercise, or a crisis-aware generated reply when none matches.
//  3. Everything else gets a personalised generated reply.
func (p *Policy) Decide(c domain.RiskClassification, profile domain.UserProfile, mode Mode) Decision {
	if c.Level == domain.LevelCritical {
		return Decision{
			Strategy: StrategyCrisisFallback,
			Level:    c.Level,
			Reply:    p.CrisisReply(),
		}
	}
	if c.Level == domain.LevelHigh && c.Intensity > p.threshold && len(c.Triggers) > 0 {
		if ex, ok := p.matchExercise(c, profile, mode); ok {
			return Decision{
				Strategy: StrategyCopingExercise,
				Level:    c.Level,
				Exercise: &ex,
				Reply:    ExerciseReply(ex),
			}
		}
		return Decision{
			Strategy: StrategyGenerate,
			Level:    c.Level,
			Prompt:   p.promptContext(profile, c, mode, true),
		}
	}
	return Decision{
		Strategy: StrategyGenerate,
		Level:    c.Level,
		Prompt:   p.promptContext(profile, c, mode, false),
	}
}

// CrisisReply is the static crisis response.
func (p *Policy) CrisisReply() string {
	return joinNonEmpty(crisisIntro, p.resourceText)
}

// Fallback is the deterministic reply used when the provider is
// unavailable. At MEDIUM or above it always carries the resource text.
func (p *Policy) Fallback(c domain.RiskClassification, requestID string) string {
	if c.Level.AtLeast(domain.LevelMedium) {
		return joinNonEmpty(rotate(p.support, requestID), p.resourceText)
	}
	return rotate(p.retryLines, requestID)
}

// ExerciseReply renders an exercise offer.
func ExerciseReply(ex domain.Exercise) string {
	return joinNonEmpty("Let's try something together: "+ex.Name+".", ex.Instructions)
}

// matchExercise picks, among exercises addressing a detected trigger, the
// one the user found effective before, then one of a preferred kind, then
// the first in catalog order. Disliked exercises and, in voice mode,
// exercises that need a screen are skipped.
func (p *Policy) matchExercise(c domain.RiskClassification, profile domain.UserProfile, mode Mode) (domain.Exercise, bool) {
	best, bestRank := -1, -1
	for i, ex := range p.catalog {
		if !addresses(ex, c) || containsFold(profile.DislikedExercises, ex.ID) {
			continue
		}
		if mode == ModeVoice && !ex.VoiceFriendly {
			continue
		}
		rank := 0
		switch {
		case containsFold(profile.EffectiveTechniques, ex.ID) || containsFold(profile.EffectiveTechniques, ex.Name):
			rank = 2
		case containsFold(profile.PreferredExerciseKinds, ex.Kind):
			rank = 1
		}
		if rank > bestRank {
			best, bestRank = i, rank
		}
	}
	if best < 0 {
		return domain.Exercise{}, false
	}
	return p.catalog[best], true
}

func addresses(ex domain.Exercise, c domain.RiskClassification) bool {
	for _, t := range ex.Triggers {
		if c.HasTrigger(t) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
