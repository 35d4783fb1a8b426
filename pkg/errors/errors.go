// Package errors provides coded, structured errors for rpaflow.
// Every error carries a code for programmatic handling, optional context,
// an optional cause and a short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound        Code = "E101"
	CodeInvalidFormat       Code = "E103"
	CodeInvalidTimestamp    Code = "E105"
	CodeSchemaMismatch      Code = "E110"
	CodeCardinalityMismatch Code = "E111"
	CodeMalformedRecord     Code = "E112"

	// Processing errors (2xx)
	CodeInvalidArgument  Code = "E201"
	CodeUndefinedMeasure Code = "E210"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// External systems (4xx)
	CodeStorage  Code = "E401"
	CodeCache    Code = "E402"
	CodeCanceled Code = "E403"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all rpaflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	e := New(code, fmt.Sprintf(format, args...))
	e.StackTrace = captureStack(2)
	return e
}

// Wrap wraps an existing error with a code and message. Wrapping nil
// returns nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// SchemaMismatch reports canonical roles that no input column could be
// bound to. missing is kept in the caller's order.
func SchemaMismatch(missing []string) *Error {
	return New(CodeSchemaMismatch, "could not find attribute(s) "+strings.Join(missing, ", ")).
		WithContext("missing", missing)
}

// CardinalityMismatch reports a positional list whose length does not match
// the number of inputs it is paired with.
func CardinalityMismatch(what string, want, got int) *Error {
	return Newf(CodeCardinalityMismatch, "%s: expected %d entries, got %d", what, want, got).
		WithContext("list", what)
}

// MalformedRecord reports a single unparsable input record.
func MalformedRecord(source string, line int, cause error) *Error {
	e := Wrap(cause, CodeMalformedRecord, "malformed record")
	if e == nil {
		e = New(CodeMalformedRecord, "malformed record")
	}
	return e.WithContext("source", source).WithContext("line", line)
}

// UndefinedMeasure reports an unknown measure name.
func UndefinedMeasure(name string) *Error {
	return Newf(CodeUndefinedMeasure, "measure %q is not defined", name).
		WithContext("measure", name)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string) *Error {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Missing returns the unbound roles carried by a SchemaMismatch error.
func Missing(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeSchemaMismatch {
		if m, ok := e.Context["missing"].([]string); ok {
			return m
		}
	}
	return nil
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
