package usecase

import (
	"errors"
	"fmt"
	"time"
)

type ErrorCode string

const (
	ErrorValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorEntitlementDenied   ErrorCode = "ENTITLEMENT_DENIED"
	ErrorProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorPersistence         ErrorCode = "PERSISTENCE_ERROR"
	ErrorNotFound            ErrorCode = "NOT_FOUND"
)

// Error is the stable error surface of the service. Message is safe to show
// to end users; Err is for logs only.
type Error struct {
	Code       ErrorCode
	Reason     string
	Message    string
	RetryAfter time.Duration
	// Resources carries crisis resource text when a denied request was
	// itself classified as risky.
	Resources string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var defaultMessages = map[ErrorCode]string{
	ErrorValidation:          "The request is invalid.",
	ErrorRateLimitExceeded:   "You've reached the limit for now. Please try again later.",
	ErrorEntitlementDenied:   "This feature isn't available on your current plan.",
	ErrorProviderUnavailable: "This service is temporarily unavailable. Please try again shortly.",
	ErrorPersistence:         "Something went wrong on our side. Please try again shortly.",
	ErrorNotFound:            "The requested item was not found.",
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: defaultMessages[code], Err: err}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
