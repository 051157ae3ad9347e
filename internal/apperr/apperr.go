// Package apperr defines the classified failure kinds surfaced by raga.
// Every user-visible failure carries a Kind and, where a route was attempted,
// the tool that was tried.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	// KindValidation indicates an empty or malformed request (query or document).
	KindValidation Kind = "validation"
	// KindUnparseableExpression indicates the calculator could not parse its input.
	KindUnparseableExpression Kind = "unparseable_expression"
	// KindDivisionByZero indicates an arithmetic division by zero.
	KindDivisionByZero Kind = "division_by_zero"
	// KindDefinitionNotFound indicates the dictionary lookup had no entry for a term.
	KindDefinitionNotFound Kind = "definition_not_found"
	// KindNotFound indicates a requested resource (e.g. a document) does not exist.
	KindNotFound Kind = "not_found"
	// KindRetrievalUnavailable indicates the vector index failed after retries.
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	// KindGenerationUnavailable indicates the chat model failed after retries.
	KindGenerationUnavailable Kind = "generation_unavailable"
	// KindConfiguration indicates missing or invalid startup parameters.
	KindConfiguration Kind = "configuration"
	// KindTimeout indicates the request deadline elapsed before completion.
	KindTimeout Kind = "timeout"
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Tool is the route that was attempted, empty when no route applies.
	Tool string
	// Message is a human-readable description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Tool != "" {
		prefix = e.Tool + ": " + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind.
func Wrap(cause error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Ensure classifies err under kind unless it already carries a kind.
func Ensure(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(err, kind, msg)
}

// WithTool returns a copy of err attributed to tool. Errors that are not
// classified are wrapped as KindInternal, or KindTimeout when the context
// deadline elapsed.
func WithTool(err error, tool string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		cp := *ae
		cp.Tool = tool
		return &cp
	}
	kind := KindInternal
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Tool: tool, Message: "request failed", Cause: err}
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// ToolOf returns the attempted tool recorded on err, if any.
func ToolOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Tool
	}
	return ""
}

// Retryable reports whether err may succeed on retry. Validation, parse and
// configuration failures never do.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnparseableExpression, KindDivisionByZero,
		KindConfiguration, KindDefinitionNotFound, KindNotFound:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
