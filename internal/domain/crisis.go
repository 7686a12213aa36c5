package domain

import "time"

// CrisisEvent is the evidentiary record opened when a message classifies at
// MEDIUM or above. Level and Message never change after creation; only
// Resolved, EmergencyContacted, EmergencyContactID and UpdatedAt may.
type CrisisEvent struct {
	ID                 string
	UserID             string
	Level              CrisisLevel
	Message            string
	ActionTaken        string
	Resolved           bool
	EmergencyContacted bool
	EmergencyContactID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
