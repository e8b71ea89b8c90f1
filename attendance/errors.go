/*
errors.go - Error kinds for the attendance engine

ERROR CATEGORIES:
  1. Not found   - Unknown employee, no ledger entry for a day, no summary
  2. Conflict    - Double check-in, checkout without check-in
  3. Upstream    - Directory, face verification or image storage failures
  4. Validation  - Malformed dates or labels in requests
  5. Corruption  - Ledger entries that break the checkin/checkout alternation

USAGE:
  Match kinds with errors.Is against the sentinels; use errors.As on the
  structured types when the details matter:

    if errors.Is(err, attendance.ErrConflict) {
        // 409
    }

  Corruption is a programming error. It is never auto-corrected.
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream failure")
	ErrValidation = errors.New("validation failed")

	// ErrCorruptLedger is returned when a stored ledger entry does not
	// alternate checkin/checkout starting with checkin.
	ErrCorruptLedger = errors.New("corrupt ledger entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names what was missing.
type NotFoundError struct {
	What string // "employee", "ledger entry", "summary"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a rejected state transition.
type ConflictError struct {
	EmployeeID string
	Date       string
	Reason     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict for %s on %s: %s", e.EmployeeID, e.Date, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// UpstreamError wraps a failed collaborator call.
// Both ErrUpstream and the underlying error match errors.Is.
type UpstreamError struct {
	Service string // "directory", "face-verification", "image-store", "leave-directory"
	Op      string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CorruptLedgerError points at the offending entry.
type CorruptLedgerError struct {
	EmployeeID string
	Date       string
	Index      int
}

func (e *CorruptLedgerError) Error() string {
	return fmt.Sprintf("ledger entry %s/%s breaks alternation at event %d", e.EmployeeID, e.Date, e.Index)
}

func (e *CorruptLedgerError) Unwrap() error { return ErrCorruptLedger }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// upstream wraps err unless it already has a kind. A collaborator reporting
// "unknown employee" stays a NotFound, an undecodable image stays a
// ValidationError.
func upstream(service, op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrValidation) {
		return err
	}
	return &UpstreamError{Service: service, Op: op, Err: err}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to the caller's input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound)
}
