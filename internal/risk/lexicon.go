package risk

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"wellness-agent/internal/domain"
)

//go:embed default_lexicon.yaml
var defaultLexiconYAML []byte

const maxIntensity = 10

// lexiconFile is the on-disk (and SSM) YAML shape of a lexicon.
type lexiconFile struct {
	Version   int `yaml:"version"`
	Intensity struct {
		Baseline   int `yaml:"baseline"`
		Amplified  int `yaml:"amplified"`
		Diminished int `yaml:"diminished"`
	} `yaml:"intensity"`
	History struct {
		Window         int `yaml:"window"`
		SustainedCount int `yaml:"sustained_count"`
		Boost          int `yaml:"boost"`
	} `yaml:"history"`
	Categories  map[string][]string `yaml:"categories"`
	Amplifiers  []string            `yaml:"amplifiers"`
	Diminishers []string            `yaml:"diminishers"`
	HighRisk    struct {
		Category string   `yaml:"category"`
		Phrases  []string `yaml:"phrases"`
	} `yaml:"high_risk"`
	Levels []levelRuleFile `yaml:"levels"`
}

type levelRuleFile struct {
	Level        string   `yaml:"level"`
	MinTriggers  int      `yaml:"min_triggers"`
	MinIntensity int      `yaml:"min_intensity"`
	Categories   []string `yaml:"categories"`
}

type categoryPhrases struct {
	category domain.TriggerCategory
	phrases  []string
}

// LevelRule raises the level to Level when a classification has at least
// MinTriggers triggers, intensity at least MinIntensity, and (if Categories
// is set) one of the listed categories. Every rule is upward closed in
// triggers and intensity, so the mapping as a whole is monotonic.
type LevelRule struct {
	Level        domain.CrisisLevel
	MinTriggers  int
	MinIntensity int
	Categories   []domain.TriggerCategory
}

func (r LevelRule) matches(triggers []domain.TriggerCategory, intensity int) bool {
	if len(triggers) < r.MinTriggers || intensity < r.MinIntensity {
		return false
	}
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		for _, t := range triggers {
			if c == t {
				return true
			}
		}
	}
	return false
}

// Lexicon is a validated, immutable keyword and level table.
type Lexicon struct {
	Version int

	baseline   int
	amplified  int
	diminished int

	historyWindow  int
	sustainedCount int
	historyBoost   int

	categories       []categoryPhrases
	known            map[domain.TriggerCategory]struct{}
	amplifiers       []string
	diminishers      []string
	highRisk         []string
	highRiskCategory domain.TriggerCategory
	rules            []LevelRule
}

// DefaultLexicon returns the lexicon compiled into the binary.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("risk: embedded lexicon is invalid: %v", err))
	}
	return lex
}

// ParseLexicon decodes and validates a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("risk: decode lexicon: %w", err)
	}
	return compile(f)
}

func compile(f lexiconFile) (*Lexicon, error) {
	lex := &Lexicon{
		Version:        f.Version,
		baseline:       f.Intensity.Baseline,
		amplified:      f.Intensity.Amplified,
		diminished:     f.Intensity.Diminished,
		historyWindow:  f.History.Window,
		sustainedCount: f.History.SustainedCount,
		historyBoost:   f.History.Boost,
		known:          make(map[domain.TriggerCategory]struct{}),
	}
	if err := lex.validateIntensity(); err != nil {
		return nil, err
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("risk: lexicon has no categories")
	}

	names := make([]string, 0, len(f.Categories))
	for name := range f.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cat, err := domain.ParseTriggerCategory(name)
		if err != nil {
			return nil, fmt.Errorf("risk: lexicon: %w", err)
		}
		phrases := normalizeAll(f.Categories[name])
		if len(phrases) == 0 {
			return nil, fmt.Errorf("risk: category %s has no phrases", cat)
		}
		lex.categories = append(lex.categories, categoryPhrases{category: cat, phrases: phrases})
		lex.known[cat] = struct{}{}
	}

	lex.amplifiers = normalizeAll(f.Amplifiers)
	lex.diminishers = normalizeAll(f.Diminishers)
	lex.highRisk = normalizeAll(f.HighRisk.Phrases)
	if len(lex.highRisk) == 0 {
		return nil, errors.New("risk: lexicon has no high-risk phrases")
	}
	if f.HighRisk.Category != "" {
		cat, err := domain.ParseTriggerCategory(f.HighRisk.Category)
		if err != nil {
			return nil, fmt.Errorf("risk: high_risk: %w", err)
		}
		lex.highRiskCategory = cat
		lex.known[cat] = struct{}{}
	}

	for i, rf := range f.Levels {
		rule, err := lex.compileRule(rf)
		if err != nil {
			return nil, fmt.Errorf("risk: levels[%d]: %w", i, err)
		}
		lex.rules = append(lex.rules, rule)
	}
	return lex, nil
}

func (l *Lexicon) validateIntensity() error {
	for name, v := range map[string]int{"baseline": l.baseline, "amplified": l.amplified, "diminished": l.diminished} {
		if v < 0 || v > maxIntensity {
			return fmt.Errorf("risk: intensity.%s %d out of range [0,%d]", name, v, maxIntensity)
		}
	}
	if l.diminished > l.baseline || l.baseline > l.amplified {
		return fmt.Errorf("risk: intensity must satisfy diminished <= baseline <= amplified (got %d, %d, %d)",
			l.diminished, l.baseline, l.amplified)
	}
	if l.historyWindow < 0 || l.sustainedCount < 0 || l.historyBoost < 0 {
		return errors.New("risk: history settings must not be negative")
	}
	return nil
}

func (l *Lexicon) compileRule(rf levelRuleFile) (LevelRule, error) {
	level, err := domain.ParseCrisisLevel(rf.Level)
	if err != nil {
		return LevelRule{}, err
	}
	if rf.MinIntensity < 0 || rf.MinIntensity > maxIntensity {
		return LevelRule{}, fmt.Errorf("min_intensity %d out of range", rf.MinIntensity)
	}
	if rf.MinTriggers < 0 {
		return LevelRule{}, fmt.Errorf("min_triggers %d is negative", rf.MinTriggers)
	}
	// A rule with neither a trigger count nor categories would raise
	// messages that matched nothing.
	if rf.MinTriggers == 0 && len(rf.Categories) == 0 {
		return LevelRule{}, errors.New("rule must require min_triggers >= 1 or list categories")
	}
	rule := LevelRule{Level: level, MinTriggers: rf.MinTriggers, MinIntensity: rf.MinIntensity}
	for _, name := range rf.Categories {
		cat, err := domain.ParseTriggerCategory(name)
		if err != nil {
			return LevelRule{}, err
		}
		if _, ok := l.known[cat]; !ok {
			return LevelRule{}, fmt.Errorf("unknown category %s", cat)
		}
		rule.Categories = append(rule.Categories, cat)
	}
	return rule, nil
}

// Categories lists the trigger categories this lexicon can produce.
func (l *Lexicon) Categories() []domain.TriggerCategory {
	out := make([]domain.TriggerCategory, 0, len(l.known))
	for c := range l.known {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rules returns a copy of the level table.
func (l *Lexicon) Rules() []LevelRule {
	return append([]LevelRule(nil), l.rules...)
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		n := normalize(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
