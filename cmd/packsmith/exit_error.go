// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/packsmith/packsmith/internal/execx"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// wrapExit converts pipeline errors into ExitError so external tool
// exit codes are relayed unchanged to the process exit status.
func wrapExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *execx.ExitCodeError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.Code, Err: err}
	}
	return &ExitError{Code: 1, Err: err}
}
