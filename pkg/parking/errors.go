package parking

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAdmissionDenied = errors.New("admission denied")
	ErrInvalidState    = errors.New("invalid state")
	ErrTransient       = errors.New("transient")
	ErrInvalidInput    = errors.New("invalid input")
)

// Domain-level error values returned by the parking service and stores.
var (
	ErrGateNotFound            = newKindError(ErrNotFound, "gate not found")
	ErrTicketNotFound          = newKindError(ErrNotFound, "ticket not found")
	ErrSpotNotFound            = newKindError(ErrNotFound, "spot not found")
	ErrVehicleNotFound         = newKindError(ErrNotFound, "vehicle not found")
	ErrVehicleCategoryMismatch = newKindError(ErrConflict, "vehicle category does not match existing record")
	ErrVehicleHasActiveTicket  = newKindError(ErrConflict, "vehicle already has an active ticket")
	ErrDuplicateTicketNumber   = newKindError(ErrConflict, "duplicate ticket number")
	ErrPaymentExists           = newKindError(ErrConflict, "payment already recorded for ticket")
	ErrNoSpotAvailable         = newKindError(ErrAdmissionDenied, "no available spot for vehicle category")
	ErrWrongGateDirection      = newKindError(ErrInvalidState, "gate direction does not match operation")
	ErrTicketNotActive         = newKindError(ErrInvalidState, "ticket is not active")
	ErrSpotStatusChanged       = newKindError(ErrInvalidState, "spot status changed concurrently")
	ErrSpotOccupied            = newKindError(ErrInvalidState, "spot is occupied")
	ErrSpotLocked              = newKindError(ErrTransient, "spot is locked by another transaction")
	ErrLockUnavailable         = newKindError(ErrTransient, "lock unavailable")
	ErrInvalidPlateNumber      = newKindError(ErrInvalidInput, "invalid plate number")
	ErrInvalidTicketNumber     = newKindError(ErrInvalidInput, "invalid ticket number")
	ErrInvalidGateID           = newKindError(ErrInvalidInput, "invalid gate id")
	ErrInvalidSpotID           = newKindError(ErrInvalidInput, "invalid spot id")
	ErrInvalidActorID          = newKindError(ErrInvalidInput, "invalid actor id")
	ErrInvalidVehicleCategory  = newKindError(ErrInvalidInput, "invalid vehicle category")
	ErrInvalidSpotCategory     = newKindError(ErrInvalidInput, "invalid spot category")
	ErrInvalidSpotStatus       = newKindError(ErrInvalidInput, "invalid spot status")
	ErrInvalidGateDirection    = newKindError(ErrInvalidInput, "invalid gate direction")
	ErrInvalidPaymentMethod    = newKindError(ErrInvalidInput, "invalid payment method")
	ErrInvalidAuditRecord      = newKindError(ErrInvalidInput, "invalid audit record")
	ErrInvalidPricingSettings  = newKindError(ErrInvalidInput, "invalid pricing settings")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

type kindError struct {
	kind    error
	message string
}

func newKindError(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

func (err *kindError) Error() string {
	return err.message
}

func (err *kindError) Unwrap() error {
	return err.kind
}

// IsRetryable reports whether the caller may safely retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
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

// MarkTransient tags err so that errors.Is(err, ErrTransient) holds while the
// original cause stays reachable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{cause: err}
}

type transientError struct {
	cause error
}

func (err transientError) Error() string {
	return err.cause.Error()
}

func (err transientError) Unwrap() []error {
	return []error{ErrTransient, err.cause}
}
