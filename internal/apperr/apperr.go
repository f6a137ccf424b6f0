// Package apperr defines the error taxonomy shared by the recommendation
// pipeline. Callers classify failures with [errors.As]; the HTTP layer maps
// each kind onto a status code via [HTTPStatus].
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConfigurationError reports a missing or invalid setting: an absent API key,
// an unset endpoint, or a user-defined provider without stored settings.
type ConfigurationError struct {
	// Component names the part of the system that is misconfigured.
	Component string
	// Reason is a human-readable description of what is missing.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Component, e.Reason)
}

// TransportError reports a failed call to an upstream service: a non-2xx
// response, a network failure, or an open circuit breaker.
type TransportError struct {
	// Service names the upstream (coze, dify, embedding, qdrant, ...).
	Service string
	// Status is the upstream HTTP status, or 0 when no response was received.
	Status int
	// Message is the upstream's own error text when it supplied one.
	Message string
	// Err is the underlying network error, if any.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Service, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Service, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: transport failure: %v", e.Service, e.Err)
	default:
		return fmt.Sprintf("%s: transport failure: %s", e.Service, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports a polling loop that exhausted its attempt budget
// before the upstream reached a terminal state.
type TimeoutError struct {
	Service  string
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no terminal status after %d attempts (%s)", e.Service, e.Attempts, time.Duration(e.Attempts)*e.Interval)
}

// EmptyResultError reports an upstream that completed without any usable
// output: no answer message, no outputs object, or an empty stream.
type EmptyResultError struct {
	Service string
	Reason  string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: empty result: %s", e.Service, e.Reason)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// fieldError is satisfied by parse errors that name the offending field.
type fieldError interface {
	error
	InvalidField() string
}

// HTTPStatus maps err onto the status code the API should answer with.
func HTTPStatus(err error) int {
	var (
		cfgErr   *ConfigurationError
		tErr     *TransportError
		toErr    *TimeoutError
		emptyErr *EmptyResultError
		nfErr    *NotFoundError
		fErr     fieldError
	)
	switch {
	case errors.As(err, &nfErr):
		return http.StatusNotFound
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &toErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &fErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tErr), errors.As(err, &emptyErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
