// Package serviceerr defines the structured error type the HTTP handlers
// write and the constructors used to build one, following the teacher's
// infrastructure/middleware error-code pattern. Provider and pipeline errors
// have their own types and are turned into a ServiceError at the HTTP layer.
package serviceerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, loggable identifier for an error class.
type Code string

const (
	CodeInvalidInput     Code = "INPUT_1001"
	CodeUnsupportedMedia Code = "INPUT_1002"
	CodePayloadTooLarge  Code = "INPUT_1003"
	CodeNotFound         Code = "RES_2001"
	CodeConflict         Code = "RES_2002"
	CodeGuardrailRejected Code = "GUARD_3001"
	CodeProviderFailure  Code = "PROV_4001"
	CodeInternal         Code = "SVC_5001"
)

// ServiceError is a structured error carrying the HTTP status it maps to.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error's Details map.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func new_(code Code, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

func wrap(code Code, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// InvalidInput builds a 400 error for malformed or missing request data.
func InvalidInput(message string) *ServiceError {
	return new_(CodeInvalidInput, message, http.StatusBadRequest)
}

// UnsupportedMedia builds a 400 error for a rejected image content type.
func UnsupportedMedia(contentType string) *ServiceError {
	return new_(CodeUnsupportedMedia, "unsupported image content type", http.StatusBadRequest).
		WithDetails("content_type", contentType)
}

// PayloadTooLarge builds a 400 error for an over-limit upload.
func PayloadTooLarge(limitBytes int64) *ServiceError {
	return new_(CodePayloadTooLarge, "upload exceeds maximum size", http.StatusBadRequest).
		WithDetails("limit_bytes", limitBytes)
}

// NotFound builds a 404 error for a missing analysis or notification.
func NotFound(resource, id string) *ServiceError {
	return new_(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("id", id)
}

// Conflict builds a 409 error for a request that conflicts with current
// state. No caller in this module uses it; a lost CAS claim is skipped by the
// scheduler rather than reported as an error.
func Conflict(message string) *ServiceError {
	return new_(CodeConflict, message, http.StatusConflict)
}

// GuardrailRejected builds a 400 error for an image the guardrail rejected.
func GuardrailRejected(reason string) *ServiceError {
	return new_(CodeGuardrailRejected, reason, http.StatusBadRequest)
}

// ProviderFailure builds a 500 error wrapping an exhausted fallback chain.
func ProviderFailure(err error) *ServiceError {
	return wrap(CodeProviderFailure, "all providers failed", http.StatusInternalServerError, err)
}

// Internal builds a 500 error for anything not otherwise classified.
func Internal(message string, err error) *ServiceError {
	return wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// As extracts a *ServiceError from an error chain, defaulting to an internal
// error when err does not already carry one.
func As(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return Internal(err.Error(), err)
}
