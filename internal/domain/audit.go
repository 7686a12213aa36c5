package domain

import "time"

// Severity marks audit entries that need human follow-up.
type Severity string

const (
	SeverityInfo Severity = "INFO"
	SeverityWarn Severity = "WARN"
	SeverityHigh Severity = "HIGH"
)

// AuditLogEntry is one append-only record of a safety or access decision.
type AuditLogEntry struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	Severity  Severity
	Details   map[string]string
	CreatedAt time.Time
}
