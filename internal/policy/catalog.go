package policy

import "wellness-agent/internal/domain"

// DefaultCatalog is the built-in set of coping exercises.
func DefaultCatalog() []domain.Exercise {
	return []domain.Exercise{
		{
			ID:            "box-breathing",
			Name:          "Box breathing",
			Kind:          "breathing",
			Triggers:      []domain.TriggerCategory{domain.TriggerAnxiety, domain.TriggerStress, domain.TriggerAnger},
			VoiceFriendly: true,
			Instructions: "Breathe in slowly for a count of four. Hold for four. Breathe out for four. " +
				"Hold again for four. Repeat this four times, letting your shoulders drop on each exhale.",
		},
		{
			ID:            "grounding-54321",
			Name:          "5-4-3-2-1 grounding",
			Kind:          "grounding",
			Triggers:      []domain.TriggerCategory{domain.TriggerAnxiety, domain.TriggerTrauma, domain.TriggerStress},
			VoiceFriendly: true,
			Instructions: "Name five things you can see, four things you can touch, three things you can hear, " +
				"two things you can smell, and one thing you can taste. Take your time with each one.",
		},
		{
			ID:            "self-compassion-letter",
			Name:          "Self-compassion note",
			Kind:          "journaling",
			Triggers:      []domain.TriggerCategory{domain.TriggerDepression, domain.TriggerHopelessness, domain.TriggerGrief},
			VoiceFriendly: false,
			Instructions: "Write a few lines to yourself as you would to a close friend going through the same thing. " +
				"Acknowledge what is hard, and name one small thing you did today that took effort.",
		},
		{
			ID:            "reach-out",
			Name:          "Reach out to one person",
			Kind:          "connection",
			Triggers:      []domain.TriggerCategory{domain.TriggerLoneliness, domain.TriggerGrief, domain.TriggerDepression},
			VoiceFriendly: true,
			Instructions: "Think of one person you trust. Send them a short message, even just to say hello. " +
				"You don't need to explain how you feel unless you want to.",
		},
		{
			ID:            "wind-down",
			Name:          "Wind-down body scan",
			Kind:          "relaxation",
			Triggers:      []domain.TriggerCategory{domain.TriggerSleep, domain.TriggerStress},
			VoiceFriendly: true,
			Instructions: "Lie down and bring your attention to your feet. Slowly move it up through your legs, " +
				"stomach, chest, arms and face, relaxing each part as you go.",
		},
		{
			ID:            "urge-surfing",
			Name:          "Urge surfing",
			Kind:          "mindfulness",
			Triggers:      []domain.TriggerCategory{domain.TriggerSubstance, domain.TriggerSelfHarm},
			VoiceFriendly: true,
			Instructions: "Notice the urge without acting on it. Describe where you feel it in your body. " +
				"Watch it rise and fall like a wave for the next ten minutes while staying somewhere safe.",
		},
	}
}
