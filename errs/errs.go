// Package errs provides structured error types and helpers for basketcore services.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an orchestration error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeGuardRejected indicates a lifecycle guard vetoed the transition.
	CodeGuardRejected Code = "guard_rejected"
	// CodeInvalidTransition indicates no edge exists for the state/event pair.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeConflict indicates a concurrent mutation conflict on append.
	CodeConflict Code = "conflict"
	// CodePersistence indicates the event store write or read failed.
	CodePersistence Code = "persistence"
	// CodeRouting indicates notification dispatch failed.
	CodeRouting Code = "routing"
	// CodeTimeout indicates the caller deadline expired before commit.
	CodeTimeout Code = "timeout"
	// CodeNotFound indicates a missing basket.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the component is shut down or saturated.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the basketcore stack.
type E struct {
	Scope    string
	Code     Code
	Message  string
	Guard    string
	Basket   string
	Metadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the originating scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:    strings.TrimSpace(scope),
		Code:     code,
		Message:  "",
		Guard:    "",
		Basket:   "",
		Metadata: nil,
		cause:    nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithGuard records the name of the guard that rejected the transition.
func WithGuard(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(e *E) {
		e.Guard = trimmed
	}
}

// WithBasket records the basket the error relates to.
func WithBasket(id string) Option {
	trimmed := strings.TrimSpace(id)
	return func(e *E) {
		e.Basket = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Basket != "" {
		parts = append(parts, "basket="+e.Basket)
	}
	if e.Guard != "" {
		parts = append(parts, "guard="+e.Guard)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the structured error code from an error chain. Unstructured
// errors report an empty code.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsCode reports whether the error chain carries the given structured code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
