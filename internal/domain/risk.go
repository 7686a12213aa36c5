package domain

import (
	"fmt"
	"strings"
)

// TriggerCategory is a detected emotional or risk theme. The set of valid
// categories is closed per loaded lexicon; the constants below are the ones
// the default lexicon ships with.
type TriggerCategory string

const (
	TriggerAnxiety      TriggerCategory = "ANXIETY"
	TriggerDepression   TriggerCategory = "DEPRESSION"
	TriggerStress       TriggerCategory = "STRESS"
	TriggerAnger        TriggerCategory = "ANGER"
	TriggerLoneliness   TriggerCategory = "LONELINESS"
	TriggerGrief        TriggerCategory = "GRIEF"
	TriggerTrauma       TriggerCategory = "TRAUMA"
	TriggerSleep        TriggerCategory = "SLEEP"
	TriggerSubstance    TriggerCategory = "SUBSTANCE"
	TriggerSelfHarm     TriggerCategory = "SELF_HARM"
	TriggerHopelessness TriggerCategory = "HOPELESSNESS"
)

// ParseTriggerCategory normalises a configured category name.
func ParseTriggerCategory(s string) (TriggerCategory, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("domain: empty trigger category")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("domain: invalid trigger category %q", s)
		}
	}
	return TriggerCategory(s), nil
}

// CrisisLevel is the ordered severity assigned to a message.
type CrisisLevel int

const (
	LevelLow CrisisLevel = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l CrisisLevel) String() string {
	if l < LevelLow || l > LevelCritical {
		return fmt.Sprintf("CrisisLevel(%d)", int(l))
	}
	return levelNames[l]
}

// AtLeast reports whether l is at or above other.
func (l CrisisLevel) AtLeast(other CrisisLevel) bool { return l >= other }

// ParseCrisisLevel maps a level name to its value.
func ParseCrisisLevel(s string) (CrisisLevel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == s {
			return CrisisLevel(i), nil
		}
	}
	return LevelLow, fmt.Errorf("domain: unknown crisis level %q", s)
}

func (l CrisisLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *CrisisLevel) UnmarshalText(b []byte) error {
	v, err := ParseCrisisLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// RiskClassification is the ephemeral result of classifying one message.
// It is recomputed per message and never persisted.
type RiskClassification struct {
	Triggers  []TriggerCategory
	Intensity int
	Level     CrisisLevel
	// HighRisk is set when the explicit high-risk lexicon matched.
	HighRisk bool
}

// HasTrigger reports whether c was detected.
func (r RiskClassification) HasTrigger(c TriggerCategory) bool {
	for _, t := range r.Triggers {
		if t == c {
			return true
		}
	}
	return false
}

// TriggerNames returns the triggers as plain strings, for audit details.
func (r RiskClassification) TriggerNames() []string {
	out := make([]string, len(r.Triggers))
	for i, t := range r.Triggers {
		out[i] = string(t)
	}
	return out
}
