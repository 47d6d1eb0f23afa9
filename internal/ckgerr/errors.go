// Package ckgerr defines the typed error taxonomy shared by every layer of
// the knowledge graph engine.
package ckgerr

import (
	"errors"
	"fmt"
)

// Code is a stable error code for a failure mode.
type Code string

const (
	// StoreUnavailable indicates the graph or chunk store could not be reached.
	StoreUnavailable Code = "STORE_UNAVAILABLE"
	// EmbedderUnavailable indicates the embedding function failed or timed out.
	EmbedderUnavailable Code = "EMBEDDER_UNAVAILABLE"
	// ParseFailed indicates a source file could not be parsed.
	ParseFailed Code = "PARSE_FAILED"
	// UnsupportedLanguage indicates no parser is registered for a file.
	UnsupportedLanguage Code = "UNSUPPORTED_LANGUAGE"
	// IndexCorruption indicates a broken invariant, such as a dangling edge.
	IndexCorruption Code = "INDEX_CORRUPTION"
	// InvalidArgument indicates a caller error.
	InvalidArgument Code = "INVALID_ARGUMENT"
	// Timeout indicates a deadline expired.
	Timeout Code = "TIMEOUT"
)

// Error is an engine error with a stable code.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around cause. It returns nil when cause is nil.
func Wrap(code Code, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ckgerr.New(ckgerr.StoreUnavailable, "")) matches by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case StoreUnavailable, EmbedderUnavailable, Timeout:
		return true
	}
	return false
}
