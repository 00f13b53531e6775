package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is matched by every *ValidationError
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBotNotFound is returned for unknown bots and for bots owned by
	// another tenant
	ErrBotNotFound = errors.New("bot not found")
)

// ValidationError describes a rejected request field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
