package store

import (
	"errors"
	"fmt"

	"github.com/roach88/itemsync/internal/item"
)

var (
	// ErrCancelled reports that a transaction was abandoned. Nothing was applied.
	// It is the only expected failure of a write and is not logged as an error.
	ErrCancelled = errors.New("transaction cancelled")

	// ErrClosed reports a write submitted to (or pending in) a closed store.
	ErrClosed = errors.New("store closed")
)

// ContractError represents a programming error detected inside a transaction.
//
// Contract errors include:
//   - Resolution violation: a merge strategy produced an inconsistent resolution
//   - Duplicate identity: an identity resolved to two items
//   - Undeclared attribute / kind mismatch: a write outside the registry contract
//   - Conflicted attribute: an edit tried to overwrite an unresolved conflict
//
// A ContractError aborts only the transaction that raised it; the store keeps
// serving other writes.
type ContractError struct {
	// Code identifies the error category.
	Code ContractErrorCode

	// Message is a human-readable description.
	Message string

	// Item identifies the affected item (zero if none).
	Item item.ID

	// Attr identifies the affected attribute (empty if none).
	Attr item.AttrID
}

// ContractErrorCode categorizes contract errors.
type ContractErrorCode string

const (
	// ErrCodeResolutionViolation indicates a merge strategy resolved an attribute
	// inconsistently with its own inputs.
	ErrCodeResolutionViolation ContractErrorCode = "RESOLUTION_VIOLATION"

	// ErrCodeDuplicateIdentity indicates one identity maps to two items.
	ErrCodeDuplicateIdentity ContractErrorCode = "DUPLICATE_IDENTITY"

	// ErrCodeUndeclaredAttribute indicates a write to an attribute missing from the registry.
	ErrCodeUndeclaredAttribute ContractErrorCode = "UNDECLARED_ATTRIBUTE"

	// ErrCodeKindMismatch indicates a value that does not fit the attribute kind.
	ErrCodeKindMismatch ContractErrorCode = "KIND_MISMATCH"

	// ErrCodeConflictedAttribute indicates an edit of an attribute with an unresolved conflict.
	ErrCodeConflictedAttribute ContractErrorCode = "CONFLICTED_ATTRIBUTE"

	// ErrCodeNotEditable indicates a write to a missing, removed or foreign item.
	ErrCodeNotEditable ContractErrorCode = "NOT_EDITABLE"

	// ErrCodePanic indicates a transaction function panicked.
	ErrCodePanic ContractErrorCode = "PANIC"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	switch {
	case e.Item != 0 && e.Attr != "":
		return fmt.Sprintf("%s: %s (item=%d, attr=%s)", e.Code, e.Message, e.Item, e.Attr)
	case e.Item != 0:
		return fmt.Sprintf("%s: %s (item=%d)", e.Code, e.Message, e.Item)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewContractError creates a ContractError.
func NewContractError(code ContractErrorCode, id item.ID, attr item.AttrID, format string, args ...any) *ContractError {
	return &ContractError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Item:    id,
		Attr:    attr,
	}
}

// Violate raises a contract violation inside a write transaction.
// The writer recovers it and aborts the transaction with the ContractError.
func Violate(code ContractErrorCode, id item.ID, attr item.AttrID, format string, args ...any) {
	panic(NewContractError(code, id, attr, format, args...))
}

// IsContractError returns true if err is (or wraps) a ContractError.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// ContractCode returns the code of a wrapped ContractError, or "" if none.
func ContractCode(err error) ContractErrorCode {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCancelled returns true if err reports a cancelled transaction.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
