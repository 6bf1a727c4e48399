package payment

import (
	"errors"
	"fmt"
)

// Error represents a failed payment-provider operation.
//
// Unlike validation errors, payment errors abort the run: the caller logs
// them, exits non-zero, and leaves the period document in its last
// consistent state (a close in flight stays "closing" so a later run can
// resume).
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Provider names the gateway implementation ("stripe", "polar", "none").
	Provider string

	// Status is the upstream HTTP status, when the error came off the wire.
	Status int

	// Details contains additional context (request IDs, decline codes).
	Details map[string]string

	// Err is the wrapped underlying error, if any.
	Err error
}

// ErrorCode categorizes payment errors.
type ErrorCode string

const (
	// ErrCodeDeclined indicates a card or charge-level rejection. Reported
	// to the bidder; the period stays closing for a re-close against the
	// next-highest bid.
	ErrCodeDeclined ErrorCode = "PAYMENT_DECLINED"

	// ErrCodeAPIError indicates a malformed request or provider outage.
	// Fatal for the run; never reported as the bidder's fault.
	ErrCodeAPIError ErrorCode = "PAYMENT_API_ERROR"

	// ErrCodeRateLimited indicates an HTTP 403/429 from the provider.
	// Worth a later re-run rather than an immediate retry.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// ErrCodeNotConfigured indicates missing provider credentials. Fails
	// fast, no retry.
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (provider=%s, status=%d)", e.Code, e.Message, e.Provider, e.Status)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (provider=%s)", e.Code, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the upstream HTTP status. Implements the interface the
// retry package's rate-limit predicate looks for.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// IsDeclined returns true for charge-level rejections.
// Uses errors.As to handle wrapped errors.
func IsDeclined(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeDeclined
}

// IsNotConfigured returns true when the gateway has no credentials.
func IsNotConfigured(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeNotConfigured
}

// IsAPIError returns true for provider outages and malformed requests.
func IsAPIError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeAPIError
}

// IsRateLimited returns true for provider throttling responses (HTTP 403
// or 429).
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeRateLimited
}
