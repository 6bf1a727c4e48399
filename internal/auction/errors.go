package auction

import (
	"errors"
	"fmt"
)

// Error represents a rejected transition. Validation and approval failures
// are returned as typed results to the caller and never abort the run;
// payment failures during close are surfaced separately by the payment
// package.
//
// Error includes structured fields so callers can render a user-facing
// message on the bid's comment thread without string matching.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// PeriodID identifies the affected period, when known.
	PeriodID string

	// CommentID identifies the affected bid, when known.
	CommentID int64

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes transition errors.
type ErrorCode string

const (
	// Validation failures, one code per check so the bidder sees a
	// specific reason rather than a generic rejection.

	// ErrCodePeriodNotOpen indicates a bid against a period that is not open.
	ErrCodePeriodNotOpen ErrorCode = "PERIOD_NOT_OPEN"

	// ErrCodeAmountTooLow indicates a bid below the configured minimum.
	ErrCodeAmountTooLow ErrorCode = "AMOUNT_TOO_LOW"

	// ErrCodeIncrementNotMet indicates a bid that does not clear the highest
	// approved bid plus the configured increment.
	ErrCodeIncrementNotMet ErrorCode = "INCREMENT_NOT_MET"

	// ErrCodeInvalidURL indicates a malformed banner or destination URL.
	ErrCodeInvalidURL ErrorCode = "INVALID_URL"

	// ErrCodeUnsupportedFormat indicates a banner format outside the
	// configured allow-list.
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// ErrCodeBannerTooLarge indicates a banner exceeding the size limit.
	ErrCodeBannerTooLarge ErrorCode = "BANNER_TOO_LARGE"

	// ErrCodeProhibitedContent indicates a prohibited term in the bid text.
	ErrCodeProhibitedContent ErrorCode = "PROHIBITED_CONTENT"

	// ErrCodeMissingRequiredContent indicates none of the required terms
	// appear in the bid text.
	ErrCodeMissingRequiredContent ErrorCode = "MISSING_REQUIRED_CONTENT"

	// ErrCodeDuplicateComment indicates a bid comment ID already present in
	// the period.
	ErrCodeDuplicateComment ErrorCode = "DUPLICATE_COMMENT"

	// ErrCodePaymentRequired indicates an unlinked bidder while
	// enforcement.require_payment_before_bid is set.
	ErrCodePaymentRequired ErrorCode = "PAYMENT_REQUIRED"

	// Lifecycle guards.

	// ErrCodeAlreadyOpen indicates an open transition while an open or
	// closing period exists.
	ErrCodeAlreadyOpen ErrorCode = "ALREADY_OPEN"

	// ErrCodeAlreadyProcessed indicates a reaction to a bid that has already
	// been approved or rejected.
	ErrCodeAlreadyProcessed ErrorCode = "ALREADY_PROCESSED"

	// ErrCodeInvalidApproval indicates an approval that would violate the
	// increment rule against the current approved set.
	ErrCodeInvalidApproval ErrorCode = "INVALID_APPROVAL"

	// ErrCodeUnknownComment indicates a reaction to a comment with no
	// recorded bid.
	ErrCodeUnknownComment ErrorCode = "UNKNOWN_COMMENT"

	// ErrCodeNoActivePeriod indicates a close or bid transition with no
	// open or closing period on disk.
	ErrCodeNoActivePeriod ErrorCode = "NO_ACTIVE_PERIOD"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.PeriodID != "" && e.CommentID != 0 {
		return fmt.Sprintf("%s: %s (period=%s, comment=%d)", e.Code, e.Message, e.PeriodID, e.CommentID)
	}
	if e.PeriodID != "" {
		return fmt.Sprintf("%s: %s (period=%s)", e.Code, e.Message, e.PeriodID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// validationCodes are the codes produced by the bid validator. They are
// user-facing and never retried.
var validationCodes = map[ErrorCode]bool{
	ErrCodePeriodNotOpen:          true,
	ErrCodeAmountTooLow:           true,
	ErrCodeIncrementNotMet:        true,
	ErrCodeInvalidURL:             true,
	ErrCodeUnsupportedFormat:      true,
	ErrCodeBannerTooLarge:         true,
	ErrCodeProhibitedContent:      true,
	ErrCodeMissingRequiredContent: true,
	ErrCodeDuplicateComment:       true,
	ErrCodePaymentRequired:        true,
}

// IsValidation returns true if the error is a bid validation failure.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return validationCodes[ae.Code]
	}
	return false
}

// IsAlreadyProcessed returns true for the re-reaction idempotency guard.
func IsAlreadyProcessed(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == ErrCodeAlreadyProcessed
}

// IsAlreadyOpen returns true for the duplicate-open idempotency guard.
func IsAlreadyOpen(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == ErrCodeAlreadyOpen
}

// CodeOf extracts the ErrorCode from an error, or "" if the error is not an
// auction Error.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}
