package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
)

// Message is a single persisted conversation turn. Immutable once written.
type Message struct {
	ID        string
	UserID    string
	Role      Role
	Content   string
	CreatedAt time.Time
	SessionID string
	Model     string
	Tokens    int
	Cost      float64
}
