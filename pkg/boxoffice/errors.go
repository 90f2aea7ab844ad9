package boxoffice

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the engine services.
var (
	ErrUnitNotFound             = errors.New("inventory unit not found")
	ErrEventNotFound            = errors.New("event not found")
	ErrOrganizerNotFound        = errors.New("organizer not found")
	ErrUnitInactive             = errors.New("inventory unit inactive")
	ErrInsufficientInventory    = errors.New("insufficient inventory")
	ErrReservationNotFound      = errors.New("reservation not found")
	ErrReservationClosed        = errors.New("reservation closed")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionNotSuccessful = errors.New("transaction not successful")
	ErrDuplicateReference       = errors.New("duplicate reference")
	ErrAlreadyProcessed         = errors.New("already processed")
	ErrInvalidMetadata          = errors.New("invalid order metadata")
	ErrInvalidMetadataJSON      = errors.New("invalid metadata json")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrInvalidAccessToken       = errors.New("invalid access token")
	ErrUnknownProvider          = errors.New("unknown payment provider")
	ErrPaymentInitialization    = errors.New("payment initialization failed")
	ErrCallbackIgnored          = errors.New("callback event ignored")
	ErrAmountMismatch           = errors.New("callback amount mismatch")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidReference         = errors.New("invalid reference")
	ErrInvalidProvider          = errors.New("invalid provider")
	ErrInvalidRate              = errors.New("invalid commission rate")
	ErrInvalidTTL               = errors.New("invalid reservation ttl")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrPayoutNotFound           = errors.New("payout not found")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrNominationNotFound       = errors.New("nomination not found")
	ErrAlreadyApproved          = errors.New("nomination already approved")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
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

// ErrorCategory groups errors by how callers should react to them.
type ErrorCategory string

const (
	CategoryNone         ErrorCategory = ""
	CategoryValidation   ErrorCategory = "validation"
	CategoryNotFound     ErrorCategory = "not_found"
	CategoryCapacity     ErrorCategory = "capacity"
	CategoryAuthenticity ErrorCategory = "authenticity"
	CategoryConflict     ErrorCategory = "conflict"
	CategoryFatal        ErrorCategory = "fatal"
	CategoryTransient    ErrorCategory = "transient"
)

type classification struct {
	target   error
	category ErrorCategory
	reason   string
}

var classifications = []classification{
	{target: ErrInvalidSignature, category: CategoryAuthenticity, reason: "invalid_signature"},
	{target: ErrAmountMismatch, category: CategoryAuthenticity, reason: "amount_mismatch"},
	{target: ErrInvalidAccessToken, category: CategoryAuthenticity, reason: "invalid_access_token"},
	{target: ErrInsufficientInventory, category: CategoryCapacity, reason: "insufficient_inventory"},
	{target: ErrUnitInactive, category: CategoryCapacity, reason: "unit_inactive"},
	{target: ErrInsufficientBalance, category: CategoryCapacity, reason: "insufficient_balance"},
	{target: ErrAlreadyProcessed, category: CategoryConflict, reason: "already_processed"},
	{target: ErrAlreadyApproved, category: CategoryConflict, reason: "already_approved"},
	{target: ErrDuplicateReference, category: CategoryConflict, reason: "duplicate_reference"},
	{target: ErrReservationClosed, category: CategoryConflict, reason: "reservation_closed"},
	{target: ErrInvalidTransition, category: CategoryConflict, reason: "invalid_transition"},
	{target: ErrTransactionNotSuccessful, category: CategoryConflict, reason: "transaction_not_successful"},
	{target: ErrCallbackIgnored, category: CategoryConflict, reason: "callback_ignored"},
	{target: ErrInvalidMetadata, category: CategoryFatal, reason: "invalid_metadata"},
	{target: ErrInvalidServiceConfig, category: CategoryFatal, reason: "invalid_service_config"},
	{target: ErrUnitNotFound, category: CategoryNotFound, reason: "unit_not_found"},
	{target: ErrEventNotFound, category: CategoryNotFound, reason: "event_not_found"},
	{target: ErrOrganizerNotFound, category: CategoryNotFound, reason: "organizer_not_found"},
	{target: ErrReservationNotFound, category: CategoryNotFound, reason: "reservation_not_found"},
	{target: ErrTransactionNotFound, category: CategoryNotFound, reason: "transaction_not_found"},
	{target: ErrPayoutNotFound, category: CategoryNotFound, reason: "payout_not_found"},
	{target: ErrNominationNotFound, category: CategoryNotFound, reason: "nomination_not_found"},
	{target: ErrUnknownProvider, category: CategoryValidation, reason: "unknown_provider"},
	{target: ErrInvalidMetadataJSON, category: CategoryValidation, reason: "invalid_metadata_json"},
	{target: ErrInvalidAmount, category: CategoryValidation, reason: "invalid_amount"},
	{target: ErrInvalidQuantity, category: CategoryValidation, reason: "invalid_quantity"},
	{target: ErrInvalidReference, category: CategoryValidation, reason: "invalid_reference"},
	{target: ErrInvalidProvider, category: CategoryValidation, reason: "invalid_provider"},
	{target: ErrInvalidRate, category: CategoryValidation, reason: "invalid_rate"},
	{target: ErrInvalidTTL, category: CategoryValidation, reason: "invalid_ttl"},
	{target: ErrInvalidStatus, category: CategoryValidation, reason: "invalid_status"},
	{target: ErrInvalidRequest, category: CategoryValidation, reason: "invalid_request"},
	{target: ErrPaymentInitialization, category: CategoryTransient, reason: "payment_initialization_failed"},
}

// Classify maps an error to its category and a stable machine-readable reason.
// Errors outside the domain taxonomy are transient.
func Classify(err error) (ErrorCategory, string) {
	if err == nil {
		return CategoryNone, ""
	}
	for _, candidate := range classifications {
		if errors.Is(err, candidate.target) {
			return candidate.category, candidate.reason
		}
	}
	return CategoryTransient, "internal_error"
}
