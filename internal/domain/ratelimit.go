package domain

import "time"

// RateWindow is the counter row for one (identifier, action) pair. A rolled
// over window is superseded in place, never deleted.
type RateWindow struct {
	Identifier  string
	Action      string
	Count       int
	WindowStart time.Time
}
