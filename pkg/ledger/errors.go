package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Every error returned by Service matches exactly one of
// them through errors.Is, or none for unexpected failures.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrStoreFailure     = errors.New("store failure")
)

// Domain-level error values returned by the ledger service and value constructors.
var (
	ErrEntryNotFound             = errors.New("entry not found")
	ErrMissingEntryID            = errors.New("missing entry id")
	ErrMissingCorrelationID      = errors.New("missing transaction id")
	ErrMissingAccount            = errors.New("missing account")
	ErrMissingDebitAmount        = errors.New("missing debit amount")
	ErrMissingCreditAmount       = errors.New("missing credit amount")
	ErrMissingSourceAccount      = errors.New("missing source account")
	ErrMissingDestinationAccount = errors.New("missing destination account")
	ErrMissingAmount             = errors.New("missing amount")
	ErrInvalidEntryID            = errors.New("invalid entry id")
	ErrInvalidCorrelationID      = errors.New("invalid transaction id")
	ErrInvalidAccount            = errors.New("invalid account")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidPostedAt           = errors.New("invalid posting time")
	ErrInvalidPageNumber         = errors.New("invalid page number")
	ErrInvalidPageSize           = errors.New("invalid page size")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
)

// FieldViolation names one rejected input field.
type FieldViolation struct {
	Field string
	Err   error
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	violations []FieldViolation
}

// NewValidationError builds a ValidationError from violations.
func NewValidationError(violations ...FieldViolation) error {
	copied := make([]FieldViolation, len(violations))
	copy(copied, violations)
	return ValidationError{violations: copied}
}

// Error returns the formatted error message.
func (validationError ValidationError) Error() string {
	parts := make([]string, 0, len(validationError.violations))
	for _, violation := range validationError.violations {
		parts = append(parts, fmt.Sprintf("%s: %v", violation.Field, violation.Err))
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

// Fields returns the rejected field names in order.
func (validationError ValidationError) Fields() []string {
	fields := make([]string, 0, len(validationError.violations))
	for _, violation := range validationError.violations {
		fields = append(fields, violation.Field)
	}
	return fields
}

// Violations returns a copy of the rejected fields and causes.
func (validationError ValidationError) Violations() []FieldViolation {
	copied := make([]FieldViolation, len(validationError.violations))
	copy(copied, validationError.violations)
	return copied
}

// Unwrap exposes ErrValidationFailed and each field cause.
func (validationError ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(validationError.violations)+1)
	errs = append(errs, ErrValidationFailed)
	for _, violation := range validationError.violations {
		errs = append(errs, violation.Err)
	}
	return errs
}

// NotFoundError reports an id with no stored entry.
type NotFoundError struct {
	ID EntryID
}

// Error returns the formatted error message.
func (notFoundError NotFoundError) Error() string {
	return "transaction not found: " + notFoundError.ID.String()
}

// Unwrap exposes ErrNotFound and ErrEntryNotFound.
func (notFoundError NotFoundError) Unwrap() []error {
	return []error{ErrNotFound, ErrEntryNotFound}
}

// StoreFailure marks err as a persistence failure.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreFailure, err)
}

// EncryptionFailure marks err as an at-rest cipher failure.
func EncryptionFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
}

// DecryptionFailure marks err as a transport cipher failure on field.
func DecryptionFailure(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDecryptionFailed, field, err)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
