package domain

import "strings"

// SubscriptionStatus is the pre-verified subscription state of a caller.
type SubscriptionStatus string

const (
	SubscriptionNone      SubscriptionStatus = ""
	SubscriptionFree      SubscriptionStatus = "free"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus lower-cases and trims a status string.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	return SubscriptionStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Paid reports whether the status grants premium features.
func (s SubscriptionStatus) Paid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionPastDue:
		return true
	}
	return false
}

// Known reports whether the status is one of the recognised values.
func (s SubscriptionStatus) Known() bool {
	switch s {
	case SubscriptionFree, SubscriptionTrial, SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

// Identity is the caller tuple supplied by the upstream authorizer.
type Identity struct {
	UserID       string
	Subscription SubscriptionStatus
	Role         string
}

// Feature names an externally billed or sensitive capability.
type Feature string

const (
	FeatureAIResponse      Feature = "ai_response"
	FeatureVoiceSession    Feature = "voice_session"
	FeatureSpeechSynthesis Feature = "speech_synthesis"
)
