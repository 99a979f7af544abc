package fund

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of these.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrNonZeroBalance = errors.New("non-zero balance")
	ErrAlreadyExists  = errors.New("already exists")
	ErrStorage        = errors.New("storage failure")
)

// ErrInvalidServiceConfig is returned when NewService is missing a dependency.
var ErrInvalidServiceConfig = errors.New("invalid service config")

// Domain-level error values returned by the fund service.
var (
	ErrNoDinersSelected         = fmt.Errorf("%w: no diners selected", ErrValidation)
	ErrInvalidMemberName        = fmt.Errorf("%w: invalid member name", ErrValidation)
	ErrInvalidAmount            = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidDate              = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidEntryMode         = fmt.Errorf("%w: invalid entry mode", ErrValidation)
	ErrInvalidSplitMode         = fmt.Errorf("%w: invalid split mode", ErrValidation)
	ErrUnknownMember            = fmt.Errorf("%w: unknown member", ErrValidation)
	ErrSettlementDepositManaged = fmt.Errorf("%w: settlement deposits follow their meal", ErrValidation)
	ErrInvalidNoticeContent     = fmt.Errorf("%w: invalid notice content", ErrValidation)

	ErrMemberNotFound  = fmt.Errorf("%w: member", ErrNotFound)
	ErrMealNotFound    = fmt.Errorf("%w: meal", ErrNotFound)
	ErrDepositNotFound = fmt.Errorf("%w: deposit", ErrNotFound)
	ErrNoticeNotFound  = fmt.Errorf("%w: notice", ErrNotFound)

	ErrMemberExists = fmt.Errorf("%w: member", ErrAlreadyExists)
)

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

// StorageError marks a driver failure as ErrStorage while keeping the cause inspectable.
func StorageError(operation string, subject string, code string, cause error) error {
	if cause == nil {
		return nil
	}
	return WrapError(operation, subject, code, fmt.Errorf("%w: %w", ErrStorage, cause))
}
