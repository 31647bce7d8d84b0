// Package fallback models values that may be unavailable from an upstream
// source together with the reason they are missing.
package fallback

import (
	"context"
	"errors"
)

// Reason classifies why a value is absent.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnconfigured     Reason = "unconfigured"
	ReasonUpstreamError    Reason = "upstream_error"
	ReasonTimeout          Reason = "timeout"
	ReasonMalformedPayload Reason = "malformed_payload"
	ReasonStoreError       Reason = "store_error"
)

// Result carries either a value or the reason it could not be produced.
type Result[T any] struct {
	Value  T
	Reason Reason
	Err    error
}

// OK wraps a successfully produced value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail records an absent value. err may be nil for designed no-op paths.
func Fail[T any](reason Reason, err error) Result[T] {
	if reason == ReasonNone {
		reason = ReasonUpstreamError
	}
	return Result[T]{Reason: reason, Err: err}
}

// Ok reports whether the result holds a value.
func (r Result[T]) Ok() bool {
	return r.Reason == ReasonNone
}

// OrElse returns the value or the substitute produced by def.
func (r Result[T]) OrElse(def func() T) T {
	if r.Ok() {
		return r.Value
	}
	return def()
}

// Classify maps a transport error onto a reason.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrMalformed):
		return ReasonMalformedPayload
	default:
		return ReasonUpstreamError
	}
}

// ErrMalformed marks payloads that could not be parsed into their typed form.
var ErrMalformed = errors.New("malformed payload")
