// Package apperr holds the error kinds shared by every engine component.
//
// Engine operations return one of these sentinels (possibly wrapped); callers
// branch with errors.Is. Duplicate peeks and poll votes are not errors, they
// come back as results with Already set.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateLimited       = errors.New("rate limited")
	// ErrTransient marks a store failure the caller may retry.
	ErrTransient = errors.New("transient store failure")
)

var kinds = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrInsufficientFunds,
	ErrRateLimited,
	ErrTransient,
}

// Invalid builds an ErrInvalidInput with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Wrap classifies err for the operation op. Errors that already carry an
// engine kind pass through, gorm.ErrRecordNotFound becomes ErrNotFound and
// anything else coming from the store or the context is transient.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}

// Kind returns the engine kind carried by err, or nil.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
