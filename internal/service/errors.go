package service

import (
	"fmt"
	"strings"
)

// Validation error codes
const (
	CodeEmptyCart            = "empty_cart"
	CodeMissingPaymentMethod = "missing_payment_method"
	CodeInsufficientPayment  = "insufficient_payment"
	CodeIncompleteSelection  = "incomplete_selection"
	CodeInvalidOption        = "invalid_option"
	CodeNoPendingSelection   = "no_pending_selection"
	CodeCartNotEmpty         = "cart_not_empty"
	CodeMissingCustomer      = "missing_customer"
	CodeEmptyHold            = "empty_hold"
	CodeInactivePayment      = "inactive_payment_method"
	CodeIdempotencyKeyReused = "idempotency_key_reused"
)

// ValidationError blocks an operation because an input is missing or wrong.
// Cart and stock state are unchanged when it is returned.
type ValidationError struct {
	Code    string
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// Is matches validation errors by code
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyCart            = &ValidationError{Code: CodeEmptyCart, Message: "please add items to cart before checkout"}
	ErrMissingPaymentMethod = &ValidationError{Code: CodeMissingPaymentMethod, Message: "please select a payment method"}
	ErrInsufficientPayment  = &ValidationError{Code: CodeInsufficientPayment, Message: "insufficient payment amount"}
	ErrIncompleteSelection  = &ValidationError{Code: CodeIncompleteSelection, Message: "select one option for each variant group"}
	ErrInvalidOption        = &ValidationError{Code: CodeInvalidOption, Message: "option does not belong to this item"}
	ErrNoPendingSelection   = &ValidationError{Code: CodeNoPendingSelection, Message: "no item is waiting for a variant selection"}
	ErrCartNotEmpty         = &ValidationError{Code: CodeCartNotEmpty, Message: "finish or clear current order first"}
	ErrMissingCustomer      = &ValidationError{Code: CodeMissingCustomer, Message: "please select a customer before holding the order"}
	ErrEmptyHold            = &ValidationError{Code: CodeEmptyHold, Message: "cannot hold an empty order"}
	ErrInactivePayment      = &ValidationError{Code: CodeInactivePayment, Message: "payment method is not active"}
	ErrIdempotencyKeyReused = &ValidationError{Code: CodeIdempotencyKeyReused, Message: "idempotency key already belongs to another sale"}
)

func incompleteSelection(missing []string) error {
	return &ValidationError{
		Code:    CodeIncompleteSelection,
		Message: ErrIncompleteSelection.Message,
		Missing: missing,
	}
}

// StockError reports that the requested quantity is not available.
// Conflict marks failures detected while committing a checkout.
type StockError struct {
	ItemID    int64
	ItemName  string
	Available int
	Remaining int
	Conflict  bool
}

func (e *StockError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("stock conflict for %s: only %d in stock", e.ItemName, e.Available)
	}
	return fmt.Sprintf("only %d in stock", e.Available)
}

// NotFoundError reports an unknown entity
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func notFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// TransactionError wraps a persistence failure during checkout. The message
// stays generic; the cause is available through Unwrap for logging.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return "sale failed, please try again"
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
