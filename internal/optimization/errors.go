package optimization

import (
	"errors"
	"fmt"
)

// Error kinds returned by the optimization packages. Match them with errors.Is.
var (
	// ErrInvalidDatasetShape reports an empty or non-rectangular initial matrix.
	ErrInvalidDatasetShape = errors.New("invalid dataset shape")
	// ErrInvalidBounds reports bounds that do not match the dimensionality or are inverted.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrInvalidConfig reports an unusable run parameter (iterations, limit, ...).
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrObjectiveFault reports a failing objective evaluation.
	ErrObjectiveFault = errors.New("objective evaluation failed")
	// ErrRunAborted is returned by a run whose previous iteration failed.
	ErrRunAborted = errors.New("run aborted")
	// ErrRunComplete is returned when stepping past the iteration budget.
	ErrRunComplete = errors.New("run complete")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewErrorf creates an error of the given kind with a formatted message.
// The kind stays reachable through errors.Is.
func NewErrorf(kind error, format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     kind,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsInvalidInput reports whether err was caused by caller-supplied input
// rather than by the run itself.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidDatasetShape) ||
		errors.Is(err, ErrInvalidBounds) ||
		errors.Is(err, ErrInvalidConfig)
}
