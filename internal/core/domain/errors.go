package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateResource = errors.New("duplicate resource")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrItemInUse         = errors.New("item in use")
	ErrValidation        = errors.New("validation failed")
)

type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindDuplicateResource ErrorKind = "DUPLICATE_RESOURCE"
	KindDuplicateRequest  ErrorKind = "DUPLICATE_REQUEST"
	KindItemInUse         ErrorKind = "ITEM_IN_USE"
	KindValidation        ErrorKind = "VALIDATION_FAILED"
	KindInternal          ErrorKind = "INTERNAL"
)

// KindOf classifies err; anything unrecognised is internal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrDuplicateResource):
		return KindDuplicateResource
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ErrItemInUse):
		return KindItemInUse
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

type NotFoundError struct {
	Resource string
	Key      string
	Value    any
}

func NewNotFoundError(resource, key string, value any) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key, Value: value}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with %s: %v", e.Resource, e.Key, e.Value)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError reports a mutation that would drive an item's
// remaining stock below zero.
type InsufficientStockError struct {
	ItemID    int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type DuplicateError struct {
	Resource string
	Field    string
	Value    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Resource, e.Field, e.Value)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateResource }

type ItemInUseError struct {
	ItemID     int64
	References int
}

func (e *ItemInUseError) Error() string {
	return fmt.Sprintf("item %d is referenced by %d movements or orders", e.ItemID, e.References)
}

func (e *ItemInUseError) Is(target error) bool { return target == ErrItemInUse }

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
