// Package errors provides service-level error handling: errors that carry
// an HTTP status, a stack trace and request context.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/beecolony/abcopt/internal/dataset"
	"github.com/beecolony/abcopt/internal/optimization"
)

// Error represents an error with context and stack trace.
type Error struct {
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// Status is the HTTP status reported for this error, 0 if unset
	Status int
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Message != "" {
		builder.WriteString(e.Message)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString("operation=")
		builder.WriteString(e.Operation)
	}

	if e.Component != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("component=")
		builder.WriteString(e.Component)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithStatus sets the HTTP status reported for the error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// Errorf creates a new error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrapf wraps an error with a formatted message. A wrapped *Error keeps its
// status and stack.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Err:     err,
		Message: fmt.Sprintf(format, args...),
	}
	var inner *Error
	if stderrors.As(err, &inner) {
		e.Status = inner.Status
		e.Stack = inner.Stack
	} else {
		e.Stack = getStackTrace()
	}
	return e
}

// BadRequest reports invalid caller input.
func BadRequest(format string, args ...interface{}) *Error {
	return Errorf(format, args...).WithStatus(http.StatusBadRequest)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...interface{}) *Error {
	return Errorf(format, args...).WithStatus(http.StatusNotFound)
}

// Conflict reports a request that clashes with the resource's state.
func Conflict(format string, args ...interface{}) *Error {
	return Errorf(format, args...).WithStatus(http.StatusConflict)
}

// Unavailable reports a temporarily exhausted resource.
func Unavailable(format string, args ...interface{}) *Error {
	return Errorf(format, args...).WithStatus(http.StatusServiceUnavailable)
}

// HTTPStatus maps err to the status a handler should answer with.
func HTTPStatus(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, dataset.ErrUnknownDataset):
		return http.StatusNotFound
	case stderrors.Is(err, dataset.ErrUnsupportedFormat), optimization.IsInvalidInput(err):
		return http.StatusBadRequest
	case stderrors.Is(err, optimization.ErrRunComplete), stderrors.Is(err, optimization.ErrRunAborted):
		return http.StatusConflict
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors/errors.go") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
