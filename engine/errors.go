/*
errors.go - Centralized error types for the credit engine

PURPOSE:
  All engine error kinds in one place. The lending service and the API layer
  classify errors with the helpers at the bottom instead of matching on
  concrete types.

ERROR CATEGORIES:
  1. Configuration errors - missing rate configuration
  2. Validation errors    - incomplete credit terms, bad payment amounts
  3. Consistency errors   - concurrent modification, missing schedule

USAGE:
  if errors.Is(err, engine.ErrConcurrentModification) {
      // retry the payment application
  }
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveRateConfig is returned when the rate resolver cannot find a
	// configuration for the reference date, nor any earlier active fallback.
	ErrNoActiveRateConfig = errors.New("no active rate configuration")

	// ErrIncompleteCreditTerms is returned when a schedule build is attempted
	// with missing principal, term, or rates. No writes are performed.
	ErrIncompleteCreditTerms = errors.New("incomplete credit terms")

	// ErrInvalidPaymentAmount is returned for non-positive cash amounts.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrConcurrentModification is returned when an optimistic-lock check on
	// a credit or installment fails during payment application.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInconsistentScheduleState is returned when a payment is applied to a
	// credit that has no generated installments.
	ErrInconsistentScheduleState = errors.New("credit has no generated schedule")

	// ErrInvalidTransition is returned when a lifecycle operation is invoked
	// on a credit whose current status does not allow it.
	ErrInvalidTransition = errors.New("invalid credit status transition")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IncompleteTermsError lists the missing inputs of a schedule build.
type IncompleteTermsError struct {
	Missing []string
}

func (e *IncompleteTermsError) Error() string {
	return fmt.Sprintf("incomplete credit terms: missing %v", e.Missing)
}

func (e *IncompleteTermsError) Unwrap() error { return ErrIncompleteCreditTerms }

// NoRateConfigError reports the reference date that failed to resolve.
type NoRateConfigError struct {
	Reference time.Time
}

func (e *NoRateConfigError) Error() string {
	return fmt.Sprintf("no active rate configuration for %s or earlier", e.Reference.Format("2006-01-02"))
}

func (e *NoRateConfigError) Unwrap() error { return ErrNoActiveRateConfig }

// TransitionError reports a rejected lifecycle operation.
type TransitionError struct {
	CreditNumber string
	From         CreditStatus
	Operation    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("credit %s: cannot %s from status %s", e.CreditNumber, e.Operation, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPaymentAmount) ||
		errors.Is(err, ErrIncompleteCreditTerms) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInconsistentScheduleState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoActiveRateConfig)
}
