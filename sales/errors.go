/*
errors.go - Error taxonomy for sales and corrections

ERROR CATEGORIES:
  1. Business rule violations - surfaced to the operator, never retried
     ErrEmployeeNotFound, ErrInvalidQuantity, ErrQuotaExceeded,
     ErrMissingReason, ErrEventNotFound, ErrMissingIdentity, ErrPendingNotFound
  2. Persistence failures - ErrPersistenceUnavailable, cause preserved

USAGE:
  if errors.Is(err, sales.ErrQuotaExceeded) {
      var qe *sales.QuotaExceededError
      if errors.As(err, &qe) {
          // qe.Current tells the operator how many the buyer already has
      }
  }
*/
package sales

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmployeeNotFound is returned when the directory has no such employee.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrInvalidQuantity is returned for quantities outside [1,10].
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrQuotaExceeded is returned when a sale would push an employee over
	// MaxPerEmployee.
	ErrQuotaExceeded = errors.New("would exceed maximum")

	// ErrMissingReason is returned when a repeat purchase is confirmed, or a
	// sale corrected, without a remark.
	ErrMissingReason = errors.New("remark required")

	// ErrEventNotFound is returned when a correction targets an unknown event.
	ErrEventNotFound = errors.New("sale event not found")

	// ErrMissingIdentity is returned when the recorder or editor is empty.
	ErrMissingIdentity = errors.New("recorder identity required")

	// ErrPendingNotFound is returned when a pending sale was never held,
	// was already confirmed or cancelled, or has expired.
	ErrPendingNotFound = errors.New("pending sale not found")

	// ErrPersistenceUnavailable wraps every failure of the backing store.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// QuotaExceededError carries the current total so the operator can explain
// the rejection to the buyer.
type QuotaExceededError struct {
	EmployeeID EmployeeID
	Current    int
	Requested  int
	Max        int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("would exceed maximum of %d: %s already has %d, requested %d",
		e.Max, e.EmployeeID, e.Current, e.Requested)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// persistenceError marks err as a store failure while keeping the cause
// reachable through errors.Is/As.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistenceUnavailable, op, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to operator input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrMissingReason) ||
		errors.Is(err, ErrMissingIdentity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrPendingNotFound)
}
