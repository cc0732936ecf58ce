// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/arbiter/pkg/errors"
)

// CLIError wraps ArbiterError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.ArbiterError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ae *errors.ArbiterError, hint string) *CLIError {
	return &CLIError{
		ArbiterError: ae,
		Hint:         hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.ArbiterError == nil {
		return "unknown error"
	}
	msg := e.ArbiterError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the ArbiterError to errors.IsCode.
func (e *CLIError) Unwrap() error {
	if e.ArbiterError == nil {
		return nil
	}
	return e.ArbiterError
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason)
	return NewCLIError(ae, "run 'arbiter help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath)

	hint := "check ARBITER_ environment variables and --set overrides"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ae, hint)
}

// NewCurveError explains a run aborted by an unresolvable curve.
func NewCurveError(err error) *CLIError {
	return NewCLIError(errors.As(err),
		"register the curve, fix the template, or relax engine.curve_miss_strategy")
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(resource, name string) *CLIError {
	ae := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name)
	return NewCLIError(ae, fmt.Sprintf("run 'arbiter %ss' to list what is available", resource))
}

func printError(w io.Writer, err error, asJSON bool) {
	ae := errors.As(err)
	hint := ""
	if ce, ok := err.(*CLIError); ok {
		hint = ce.Hint
	}
	if asJSON {
		payload := map[string]any{"error": map[string]any{
			"code":    ae.Code,
			"message": ae.Message,
			"hint":    hint,
		}}
		_ = json.NewEncoder(w).Encode(payload)
		return
	}
	if ae.Code == errors.CodeInternal && ae.Message == "wrapped error" {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", ae.Code, ae.Message)
	if ae.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", ae.Err)
	}
	if hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", hint)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.IsCode(err, errors.CodeCurveNotFound):
		return 3
	case errors.IsCode(err, errors.CodeInvalidInput), errors.IsCode(err, errors.CodeNotFound):
		return 2
	default:
		return 1
	}
}
