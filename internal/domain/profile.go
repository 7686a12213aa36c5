package domain

// UserProfile is the per-user history used to personalise responses.
type UserProfile struct {
	UserID                 string
	DisplayName            string
	EffectiveTechniques    []string
	KnownTriggers          []TriggerCategory
	PreferredExerciseKinds []string
	DislikedExercises      []string
	EmergencyContactID     string
}

// Exercise is a cataloged coping exercise.
type Exercise struct {
	ID            string
	Name          string
	Kind          string
	Triggers      []TriggerCategory
	VoiceFriendly bool
	Instructions  string
}
