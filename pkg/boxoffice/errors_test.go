package boxoffice

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "reservation"
	codeName         = "insert_failed"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName || operationError.Subject() != subjectName || operationError.Operation() != operationName {
		test.Fatalf("expected accessible segments, got %+v", operationError)
	}
	if !errors.Is(wrappedError, baseError) {
		test.Fatalf("expected unwrap to reach the base error")
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestClassifyMapsTaxonomy(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		err      error
		category ErrorCategory
		reason   string
	}{
		{err: nil, category: CategoryNone},
		{err: fmt.Errorf("%w: requested 2", ErrInsufficientInventory), category: CategoryCapacity, reason: "insufficient_inventory"},
		{err: WrapError("store", "transaction", "lookup", ErrTransactionNotFound), category: CategoryNotFound, reason: "transaction_not_found"},
		{err: ErrInvalidSignature, category: CategoryAuthenticity, reason: "invalid_signature"},
		{err: ErrAlreadyApproved, category: CategoryConflict, reason: "already_approved"},
		{err: ErrInvalidMetadata, category: CategoryFatal, reason: "invalid_metadata"},
		{err: ErrInvalidQuantity, category: CategoryValidation, reason: "invalid_quantity"},
		{err: context.DeadlineExceeded, category: CategoryTransient, reason: "internal_error"},
		{err: errors.New("connection reset by peer"), category: CategoryTransient, reason: "internal_error"},
	}
	for _, testCase := range testCases {
		category, reason := Classify(testCase.err)
		if category != testCase.category || reason != testCase.reason {
			test.Fatalf("classify %v: expected %s/%s, got %s/%s", testCase.err, testCase.category, testCase.reason, category, reason)
		}
	}
}
