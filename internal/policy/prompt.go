package policy

import (
	"fmt"
	"strings"

	"wellness-agent/internal/domain"
)

// PromptContext is the system context handed to the completion provider.
type PromptContext struct {
	System      []string
	CrisisAware bool
}

func (p *Policy) promptContext(profile domain.UserProfile, c domain.RiskClassification, mode Mode, crisisAware bool) PromptContext {
	return PromptContext{
		System: []string{
			buildPolicyPrompt(crisisAware, mode),
			buildProfileContextPrompt(p.pinnedPrompt, profile, c),
		},
		CrisisAware: crisisAware,
	}
}

// BuildMessages assembles system context, completed history and the
// current message.
func BuildMessages(pc PromptContext, history []domain.Message, content string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(pc.System)+len(history)+1)
	for _, s := range pc.System {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: s})
	}
	for _, m := range history {
		if msg, ok := historyToPromptMessage(m); ok {
			messages = append(messages, msg)
		}
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: content})
}

func buildPolicyPrompt(crisisAware bool, mode Mode) string {
	parts := []string{
		"Role:",
		"You are a supportive wellness companion. You are not a therapist and do not diagnose.",
		"",
		"Behavior Rules:",
		behaviorRules(mode),
	}
	if crisisAware {
		parts = append(parts,
			"",
			"Current Risk:",
			"The user appears to be in significant distress. Respond with warmth, validate their feelings, "+
				"gently ask whether they are safe, and encourage them to reach out to someone they trust or a crisis line.",
		)
	}
	return strings.Join(parts, "\n")
}

func behaviorRules(mode Mode) string {
	rules := []string{
		"1) Respond only to the user's current message, using the conversation for context.",
		"2) Be warm, brief and non-judgmental.",
		"3) Never give medical, dosage or diagnostic advice.",
		"4) Never describe methods of self-harm.",
		"5) Suggest techniques the user has found helpful before when relevant.",
	}
	if mode == ModeVoice {
		rules = append(rules, "6) Your reply will be spoken aloud: no lists, links or formatting.")
	}
	return strings.Join(rules, "\n")
}

func buildProfileContextPrompt(pinned string, profile domain.UserProfile, c domain.RiskClassification) string {
	name := normalizePromptInput(profile.DisplayName)
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf(
		"%s\n\nUser Context:\n\nName:\n%s\n\nTechniques that helped before:\n%s\n\nKnown triggers:\n%s\n\nDetected in this message:\n%s",
		strings.TrimSpace(pinned),
		name,
		listOrNone(profile.EffectiveTechniques),
		listOrNone(triggerStrings(profile.KnownTriggers)),
		listOrNone(c.TriggerNames()),
	)
}

func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return domain.ChatMessage{}, false
	}
	switch m.Role {
	case domain.RoleUser:
		return domain.ChatMessage{Role: "user", Content: content}, true
	case domain.RoleAssistant:
		return domain.ChatMessage{Role: "assistant", Content: content}, true
	}
	return domain.ChatMessage{}, false
}

func triggerStrings(ts []domain.TriggerCategory) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func listOrNone(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if it = normalizePromptInput(it); it != "" {
			cleaned = append(cleaned, it)
		}
	}
	if len(cleaned) == 0 {
		return "none"
	}
	return strings.Join(cleaned, ", ")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
