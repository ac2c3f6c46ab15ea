// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/jllopis/switchboard/pkg/errors"
)

// CLIError wraps a typed error with a hint for the user.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps a configuration failure. Typed errors keep their code;
// anything else is reported as CONFIG_ERROR.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeConfig, "configuration error", err)
	if errors.CodeOf(err) != "" {
		e = errors.As(err)
	}
	e = e.WithContext("config_path", configPath)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s, or run 'switchboard validate'", configPath)
	}
	return NewCLIError(e, hint)
}

// NewNotFoundError reports a missing named resource.
func NewNotFoundError(resource, name string) *CLIError {
	e := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name)
	return NewCLIError(e, fmt.Sprintf("run 'switchboard %ss list' to see what is available", resource))
}

// NewInvalidArgumentError reports a bad flag combination or argument.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	return NewCLIError(e, "run 'switchboard help' for usage information")
}

// printError writes err in the "Error [CODE]: message" form, followed by a
// hint when there is one.
func printError(w io.Writer, err error) {
	if errors.CodeOf(err) == "" {
		fmt.Fprintf(w, "Error: %s\n", err)
		return
	}
	e := errors.As(err)
	fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, describe(e))
	if cliErr, ok := err.(*CLIError); ok && cliErr.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", cliErr.Hint)
	}
}

func describe(e *errors.Error) string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}
