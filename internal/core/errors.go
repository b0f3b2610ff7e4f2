package core

import (
	"errors"
	"fmt"
)

// Error codes for reportable failures.
const (
	ErrCodeValidation     = "validation"
	ErrCodeUnknownCommand = "unknown_command"
	ErrCodeDuplicate      = "duplicate_command"
)

var (
	// ErrValidation marks a command with the wrong parameter arity or shape.
	ErrValidation = errors.New("invalid parameters")
	// ErrUnknownCommand marks an identifier that is not registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicateCommand is returned when an identifier is registered twice.
	// It is a startup defect and must abort initialization.
	ErrDuplicateCommand = errors.New("duplicate command")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code string, err error, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// Validationf builds a validation error reportable to the user.
func Validationf(format string, args ...any) *CoreError {
	return coreError(ErrCodeValidation, ErrValidation, fmt.Sprintf(format, args...))
}

// UnknownCommand builds the error reported for an unregistered identifier.
func UnknownCommand(identifier string) *CoreError {
	return coreError(ErrCodeUnknownCommand, ErrUnknownCommand, fmt.Sprintf("invalid command `%s`", identifier))
}
