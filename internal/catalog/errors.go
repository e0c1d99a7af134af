package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyPublished = errors.New("already published")
	ErrTransport        = errors.New("transport failure")
)

// Validation wraps ErrValidation with a field-specific reason.
func Validation(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// Transport marks a delivery failure for one recipient or message.
//
// Callers on fire-and-forget paths (broadcast, deletion) log these and move on.
func Transport(op string, chatID int64, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, ChatID: chatID, Err: err}
}

type TransportError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s chat=%d: %v", e.Op, e.ChatID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
