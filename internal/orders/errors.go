package orders

import (
	"errors"
	"fmt"
)

// Store-level sentinels. Store implementations wrap these; Service turns
// them into the typed errors below.
var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	errOrderNumberExhausted = errors.New("could not allocate a unique order number")
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidTransition Kind = "invalid_transition"
	KindAlreadyPaid       Kind = "already_paid"
	KindStorage           Kind = "storage"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Entity string // "order" | "product"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d",
		e.ProductID, e.ProductName, e.Requested, e.Available)
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is %s and cannot move to %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

type AlreadyPaidError struct {
	OrderID   string
	PaymentID string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("order %s already paid with payment %s", e.OrderID, e.PaymentID)
}

// StorageError wraps unexpected persistence failures (connection loss,
// constraint errors not modelled above).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": storage: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// KindOf returns the machine-readable kind of err. Errors outside the
// taxonomy are reported as KindStorage.
func KindOf(err error) Kind {
	var (
		ve  *ValidationError
		nfe *NotFoundError
		ise *InsufficientStockError
		ite *InvalidTransitionError
		ape *AlreadyPaidError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nfe):
		return KindNotFound
	case errors.As(err, &ise):
		return KindInsufficientStock
	case errors.As(err, &ite):
		return KindInvalidTransition
	case errors.As(err, &ape):
		return KindAlreadyPaid
	default:
		return KindStorage
	}
}
