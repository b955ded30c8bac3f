// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Type identifies the category of error
type Type string

const (
	// TypeIncompatibleFlags indicates mutually exclusive feature flags were both set
	TypeIncompatibleFlags Type = "INCOMPATIBLE_FLAGS"

	// TypeUnsupportedConfiguration indicates no catalogue entry matches a configuration
	TypeUnsupportedConfiguration Type = "UNSUPPORTED_CONFIGURATION"

	// TypeValidationFailed indicates one or more input constraints were violated
	TypeValidationFailed Type = "VALIDATION_FAILED"

	// TypePriceUnavailable indicates a price could not be fetched and no usable cache exists
	TypePriceUnavailable Type = "PRICE_UNAVAILABLE"

	// TypeFormula indicates a formula could not be evaluated
	TypeFormula Type = "FORMULA_ERROR"

	// TypeInvalidMeterKey indicates a meter key could not be constructed or parsed
	TypeInvalidMeterKey Type = "INVALID_METER_KEY"

	// TypeParsing indicates a parsing error
	TypeParsing Type = "PARSING_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeNetwork indicates a network error
	TypeNetwork Type = "NETWORK_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`

	// Violations is populated for TypeValidationFailed
	Violations []Violation `json:"violations,omitempty"`
}

// Violation is a single violated input constraint
type Violation struct {
	// Field is the input field the constraint applies to
	Field string `json:"field"`

	// Rule names the constraint (min_capacity, required, exclusive_flags, ...)
	Rule string `json:"rule"`

	// Message is a human-readable explanation
	Message string `json:"message"`
}

// String renders the violation on one line
func (v Violation) String() string {
	return fmt.Sprintf("%s (%s): %s", v.Field, v.Rule, v.Message)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.String()
		}
		msg = msg + ": " + strings.Join(parts, "; ")
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType reports whether err, or any error it wraps, is of type t
func IsType(err error, t Type) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// ViolationsOf returns the violations carried by a ValidationFailed error
func ViolationsOf(err error) []Violation {
	var e *Error
	if stderrors.As(err, &e) && e.Type == TypeValidationFailed {
		return e.Violations
	}
	return nil
}

// IncompatibleFlags creates an incompatible-flags error
func IncompatibleFlags(message string) *Error {
	return New(TypeIncompatibleFlags, message)
}

// UnsupportedConfiguration creates an unsupported-configuration error
func UnsupportedConfiguration(format string, args ...interface{}) *Error {
	return Newf(TypeUnsupportedConfiguration, format, args...)
}

// ValidationFailed creates a validation error carrying every violation
func ValidationFailed(violations []Violation) *Error {
	return &Error{
		Type:       TypeValidationFailed,
		Message:    fmt.Sprintf("%d input constraint(s) violated", len(violations)),
		Violations: violations,
	}
}

// PriceUnavailable creates a price-unavailable error
func PriceUnavailable(message string, cause error) *Error {
	return Wrap(TypePriceUnavailable, message, cause)
}

// Formula creates a formula error
func Formula(message string, cause error) *Error {
	return Wrap(TypeFormula, message, cause)
}

// InvalidMeterKey creates an invalid-meter-key error
func InvalidMeterKey(format string, args ...interface{}) *Error {
	return Newf(TypeInvalidMeterKey, format, args...)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// Config creates a configuration error
func Config(message string) *Error {
	return New(TypeConfig, message)
}

// Network creates a network error
func Network(message string, cause error) *Error {
	return Wrap(TypeNetwork, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
