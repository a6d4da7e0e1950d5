package errors

import (
	"errors"
	"fmt"
)

// ErrorWrapper tags errors with the module and operation that produced them.
type ErrorWrapper struct {
	module    string
	operation string
}

// NewWrapper returns a wrapper for module/operation.
func NewWrapper(module, operation string) ErrorWrapper {
	return ErrorWrapper{module: module, operation: operation}
}

// Wrap returns nil for a nil err.
func (w ErrorWrapper) Wrap(err error, userMessage string) error {
	if err == nil {
		return nil
	}
	return &WrappedError{
		Module:      w.module,
		Operation:   w.operation,
		Cause:       err,
		UserMessage: userMessage,
	}
}

// Wrapf is Wrap with a formatted user message.
func (w ErrorWrapper) Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return w.Wrap(err, fmt.Sprintf(format, args...))
}

// WrappedError carries the internal cause alongside a message that is safe
// to show to a chat user.
type WrappedError struct {
	Module      string
	Operation   string
	Cause       error
	UserMessage string
}

func (e *WrappedError) Error() string {
	if e.UserMessage == "" {
		return fmt.Sprintf("[%s:%s] %v", e.Module, e.Operation, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %v", e.Module, e.Operation, e.UserMessage, e.Cause)
}

func (e *WrappedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the first user-facing message found in err's chain,
// or fallback when there is none.
func UserMessage(err error, fallback string) string {
	var wrapped *WrappedError
	if errors.As(err, &wrapped) && wrapped.UserMessage != "" {
		return wrapped.UserMessage
	}
	return fallback
}
