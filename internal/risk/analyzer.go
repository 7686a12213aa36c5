// Package risk classifies chat messages into trigger categories, an
// intensity score and a crisis level using a configurable keyword lexicon.
package risk

import (
	"errors"
	"sort"

	"wellness-agent/internal/domain"
)

// Analyzer is a pure classifier over one Lexicon. It holds no mutable state
// and is safe for concurrent use.
type Analyzer struct {
	lex *Lexicon
}

// NewAnalyzer binds an Analyzer to lex.
func NewAnalyzer(lex *Lexicon) (*Analyzer, error) {
	if lex == nil {
		return nil, errors.New("risk: lexicon must not be nil")
	}
	return &Analyzer{lex: lex}, nil
}

// Lexicon returns the table the analyzer was built from.
func (a *Analyzer) Lexicon() *Lexicon { return a.lex }

// Classify scores text, optionally using recent user messages from the same
// conversation (oldest first). It never fails: input that cannot be scored
// yields {no triggers, intensity 0, LOW}. The high-risk lexicon is checked
// independently and, on a match, forces CRITICAL.
func (a *Analyzer) Classify(text string, history []string) domain.RiskClassification {
	normalized := normalize(text)
	out := a.score(normalized, history)

	if a.matchesHighRisk(normalized) {
		out.HighRisk = true
		out.Level = domain.LevelCritical
	}
	return out
}

func (a *Analyzer) matchesHighRisk(normalized string) bool {
	for _, p := range a.lex.highRisk {
		if containsPhrase(normalized, p) {
			return true
		}
	}
	return false
}

func (a *Analyzer) score(normalized string, history []string) (out domain.RiskClassification) {
	defer func() {
		if recover() != nil {
			out = domain.RiskClassification{Level: domain.LevelLow}
		}
	}()

	if normalized == "" {
		return domain.RiskClassification{Level: domain.LevelLow}
	}

	triggers := a.triggers(normalized)
	if a.lex.highRiskCategory != "" && a.matchesHighRisk(normalized) {
		triggers = addTrigger(triggers, a.lex.highRiskCategory)
	}
	if len(triggers) == 0 {
		return domain.RiskClassification{Level: domain.LevelLow}
	}

	intensity := a.intensity(normalized)
	if a.sustained(triggers, history) {
		intensity += a.lex.historyBoost
	}
	if intensity > maxIntensity {
		intensity = maxIntensity
	}

	return domain.RiskClassification{
		Triggers:  triggers,
		Intensity: intensity,
		Level:     a.level(triggers, intensity),
	}
}

func (a *Analyzer) triggers(normalized string) []domain.TriggerCategory {
	var out []domain.TriggerCategory
	for _, cp := range a.lex.categories {
		for _, p := range cp.phrases {
			if containsPhrase(normalized, p) {
				out = append(out, cp.category)
				break
			}
		}
	}
	return out
}

// intensity starts at the baseline. Amplifiers win over diminishers when
// both are present.
func (a *Analyzer) intensity(normalized string) int {
	for _, p := range a.lex.amplifiers {
		if containsPhrase(normalized, p) {
			return a.lex.amplified
		}
	}
	for _, p := range a.lex.diminishers {
		if containsPhrase(normalized, p) {
			return a.lex.diminished
		}
	}
	return a.lex.baseline
}

// sustained reports whether enough recent messages share a trigger with the
// current one.
func (a *Analyzer) sustained(current []domain.TriggerCategory, history []string) bool {
	if a.lex.sustainedCount == 0 || a.lex.historyBoost == 0 || len(history) == 0 {
		return false
	}
	if w := a.lex.historyWindow; w > 0 && len(history) > w {
		history = history[len(history)-w:]
	}
	hits := 0
	for _, h := range history {
		for _, t := range a.triggers(normalize(h)) {
			if containsTrigger(current, t) {
				hits++
				break
			}
		}
	}
	return hits >= a.lex.sustainedCount
}

func (a *Analyzer) level(triggers []domain.TriggerCategory, intensity int) domain.CrisisLevel {
	level := domain.LevelLow
	for _, r := range a.lex.rules {
		if r.Level > level && r.matches(triggers, intensity) {
			level = r.Level
		}
	}
	return level
}

func addTrigger(ts []domain.TriggerCategory, c domain.TriggerCategory) []domain.TriggerCategory {
	if containsTrigger(ts, c) {
		return ts
	}
	ts = append(ts, c)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

func containsTrigger(ts []domain.TriggerCategory, c domain.TriggerCategory) bool {
	for _, t := range ts {
		if t == c {
			return true
		}
	}
	return false
}
