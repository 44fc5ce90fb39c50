// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure. The kind decides how a failure is
// handled: configuration, I/O, network, tool, and integrity failures
// are fatal with no retry; a stale-cache failure is recoverable through
// exactly one repack attempt unless the caller disabled repacking.
type Kind int

const (
	// KindUnknown is the zero kind for errors without a classification.
	KindUnknown Kind = iota
	// KindConfig marks missing or invalid configuration (versions, URLs,
	// conflicting flags).
	KindConfig
	// KindIO marks delete/extract/write failures.
	KindIO
	// KindNetwork marks download failures.
	KindNetwork
	// KindTool marks a non-zero exit from an external tool invocation.
	KindTool
	// KindStale marks a cache validation failure (missing or corrupt
	// ledger, missing artifact, stale fingerprint or timestamps).
	KindStale
	// KindIntegrity marks a packaging-tool contract violation, such as a
	// produced artifact that cannot be located or identified.
	KindIntegrity
)

// String returns the kind's short name.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindNetwork:
		return "network"
	case KindTool:
		return "tool"
	case KindStale:
		return "stale"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

type (
	// ActionableError is an error with context for user-facing messages:
	// what operation failed, what resource was involved, how the failure
	// is classified, and suggestions for fixing it.
	//
	// Use the ErrorContext builder for convenient construction:
	//
	//	err := issue.NewErrorContext(issue.KindConfig).
	//		WithOperation("resolve runtimes version").
	//		WithSuggestion("Provide --runtimes-version or set 'runtimesVersion' in the config").
	//		Build()
	ActionableError struct {
		// Kind classifies the failure for handling decisions.
		Kind Kind

		// Operation describes what was being attempted (e.g., "extract runtimes archive").
		Operation string

		// Resource identifies the file, path, or URL involved (optional).
		Resource string

		// Suggestions provides hints on how to fix the issue (optional).
		Suggestions []string

		// Doc is the id of a registered guidance document (optional).
		Doc Id

		// Cause is the underlying error that triggered this one (optional).
		Cause error
	}

	// ErrorContext is a builder for constructing ActionableError
	// instances with a fluent API.
	ErrorContext struct {
		kind        Kind
		operation   string
		resource    string
		suggestions []string
		doc         Id
		cause       error
	}
)

// NewErrorContext creates a builder for the given failure kind.
func NewErrorContext(kind Kind) *ErrorContext {
	return &ErrorContext{kind: kind}
}

// Wrap wraps an error with a kind and operation context. Returns nil
// when err is nil.
func Wrap(err error, kind Kind, operation string) *ActionableError {
	if err == nil {
		return nil
	}
	return &ActionableError{Kind: kind, Operation: operation, Cause: err}
}

// WrapResource wraps an error with kind, operation, and resource context.
func WrapResource(err error, kind Kind, operation, resource string) *ActionableError {
	if err == nil {
		return nil
	}
	return &ActionableError{Kind: kind, Operation: operation, Resource: resource, Cause: err}
}

// Error implements the error interface with a concise message suitable
// for default (non-verbose) output.
func (e *ActionableError) Error() string {
	var msg strings.Builder

	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)

	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}

	return msg.String()
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns a formatted message. When verbose is true the full
// error chain is appended below the suggestions.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder

	msg.WriteString(e.Error())

	for _, suggestion := range e.Suggestions {
		msg.WriteString("\n  • ")
		msg.WriteString(suggestion)
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		err := e.Cause
		depth := 1
		for err != nil {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			err = errors.Unwrap(err)
			depth++
		}
	}

	return msg.String()
}

// KindOf returns the Kind of the outermost ActionableError in err's
// chain, or KindUnknown when no ActionableError is present.
func KindOf(err error) Kind {
	var ae *ActionableError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the resource (file, path, URL) involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion adds a suggestion for how to fix the issue. May be
// called multiple times.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// WithDoc attaches a registered guidance document id.
func (c *ErrorContext) WithDoc(id Id) *ErrorContext {
	c.doc = id
	return c
}

// WrapCause wraps an underlying error as the cause.
func (c *ErrorContext) WrapCause(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build creates an ActionableError from the context. Returns nil if no
// operation is set (the operation is required).
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Kind:        c.kind,
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Doc:         c.doc,
		Cause:       c.cause,
	}
}

// BuildError creates an ActionableError and returns it as an error
// interface, for direct use in return statements.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}
