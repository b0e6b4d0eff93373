package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryGraph     Category = "graph"
	CategoryInline    Category = "inline"
	CategoryTranspile Category = "transpile"
	CategoryDecl      Category = "decl"
	CategoryArtifact  Category = "artifact"
	CategoryConfig    Category = "config"
	CategoryProtocol  Category = "protocol"
	CategoryCLI       Category = "cli"
)

// MirageError is a structured build-time error. It carries the unit and
// field identity needed to locate the offending declaration, plus optional
// detail and a fix suggestion.
type MirageError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (graph, transpile, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Unit is the authoring unit the error originated in.
	Unit string

	// Field is the reactive field the error originated in.
	Field string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *MirageError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	switch {
	case e.Unit != "" && e.Field != "":
		return fmt.Sprintf("%s (unit %q, field %q)", msg, e.Unit, e.Field)
	case e.Unit != "":
		return fmt.Sprintf("%s (unit %q)", msg, e.Unit)
	default:
		return msg
	}
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *MirageError) Unwrap() error {
	return e.Wrapped
}

// WithUnit records the originating authoring unit.
func (e *MirageError) WithUnit(unit string) *MirageError {
	e.Unit = unit
	return e
}

// WithField records the originating reactive field.
func (e *MirageError) WithField(field string) *MirageError {
	e.Field = field
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *MirageError) WithDetail(d string) *MirageError {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted detailed explanation.
func (e *MirageError) WithDetailf(format string, args ...any) *MirageError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *MirageError) WithSuggestion(s string) *MirageError {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *MirageError) Wrap(err error) *MirageError {
	e.Wrapped = err
	return e
}

// New creates a MirageError from a registered error code.
func New(code string) *MirageError {
	template, ok := registry[code]
	if !ok {
		return &MirageError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &MirageError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new MirageError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *MirageError {
	return &MirageError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// As reports whether any error in err's chain matches target. Re-exported
// from the standard library so callers of this package need only one import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// FromError wraps a standard error in a MirageError.
func FromError(err error, code string) *MirageError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MirageError); ok {
		return me
	}
	return New(code).Wrap(err)
}
