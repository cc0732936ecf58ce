// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Arbiter.
// Soft failures (missing fetchers, missing considerations) never surface here;
// they are logged and the candidate drops out. Only hard failures and
// misuse of the tracker store are reported as ArbiterError values.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Arbiter errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid (bad template data, bad config).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeCurveNotFound indicates a curve key could not be resolved under the strict strategy.
	CodeCurveNotFound ErrorCode = "CURVE_NOT_FOUND"

	// CodeInvalidTransition indicates a lifecycle transition the state machine forbids.
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// CodeStaleAgent indicates an operation referenced an agent that no longer exists.
	CodeStaleAgent ErrorCode = "STALE_AGENT"

	// CodeDuplicateKey indicates a registration collided with an existing key.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeStorage indicates an audit storage backend error.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeTimeout indicates a host call exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeUnavailable indicates a host call was refused by an open circuit breaker.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// ArbiterError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type ArbiterError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *ArbiterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ArbiterError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *ArbiterError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new ArbiterError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *ArbiterError {
	return &ArbiterError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ArbiterError) WithContext(key string, value interface{}) *ArbiterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *ArbiterError) WithRecoverable(recoverable bool) *ArbiterError {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to an ArbiterError.
// Returns the error as ArbiterError if it is one, or wraps it otherwise.
func As(err error) *ArbiterError {
	if err == nil {
		return nil
	}
	var ae *ArbiterError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether any ArbiterError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var ae *ArbiterError
	for err != nil {
		if !stderrors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Err
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *ArbiterError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
