package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a keyed record does not exist.
	ErrNotFound = errors.New("domain: not found")
	// ErrConflict is returned when a conditional write loses.
	ErrConflict = errors.New("domain: conditional write conflict")
)
