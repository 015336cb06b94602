package domain

import (
	"errors"
	"fmt"

	"autoservice/internal/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrValidation             = errors.New("validation error")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrCenterMismatch         = errors.New("center mismatch")
	ErrOwnership              = errors.New("ownership violation")
	ErrConcurrentModification = errors.New("concurrent modification")
)

var (
	ErrSlotTaken       = fmt.Errorf("%w: technician slot already booked", ErrConflict)
	ErrSlotHeld        = fmt.Errorf("%w: slot is held by another party", ErrConflict)
	ErrAlreadyConsumed = fmt.Errorf("%w: part already consumed", ErrConflict)
	ErrNotInProgress   = fmt.Errorf("%w: booking is not in progress", ErrConflict)
	// customer-supplied usages are consumed from an order item, never from stock
	ErrCustomerSupplied    = fmt.Errorf("%w: part is customer-supplied, consume it from the customer's order", ErrConflict)
	ErrChecklistIncomplete = fmt.Errorf("%w: checklist has pending results", ErrConflict)
	ErrPastDate            = fmt.Errorf("%w: date is in the past", ErrValidation)
	ErrDateTooFar          = fmt.Errorf("%w: date is too far in the future", ErrValidation)
)

// Invalid builds a validation error with a human readable reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error naming the missing entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// TransitionError reports a rejected booking status change.
type TransitionError struct {
	BookingID int64
	From      models.BookingStatus
	To        models.BookingStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition for booking %d from %s to %s", e.BookingID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type StockCode string

const (
	CodeInsufficientStock  StockCode = "INSUFFICIENT_STOCK"
	CodePartNotInInventory StockCode = "PART_NOT_IN_INVENTORY"
	CodeCenterMismatch     StockCode = "CENTER_MISMATCH"
	CodeInventoryNotFound  StockCode = "INVENTORY_NOT_FOUND"
)

// StockError reports why a consumption could not draw from stock.
type StockError struct {
	Code      StockCode
	CenterID  int64
	PartID    int64
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	switch e.Code {
	case CodeInsufficientStock:
		return fmt.Sprintf("%s: part %d at center %d: requested %d, available %d",
			e.Code, e.PartID, e.CenterID, e.Requested, e.Available)
	default:
		return fmt.Sprintf("%s: part %d at center %d", e.Code, e.PartID, e.CenterID)
	}
}

func (e *StockError) Is(target error) bool {
	switch e.Code {
	case CodeInsufficientStock:
		return target == ErrInsufficientStock
	case CodeCenterMismatch:
		return target == ErrCenterMismatch
	case CodePartNotInInventory, CodeInventoryNotFound:
		return target == ErrNotFound
	}
	return false
}
