package main

import (
	"fmt"
	"strings"
)

func newCommandError(operation, context string, cause error, suggestion string) error {
	return &commandError{operation: operation, context: context, cause: cause, suggestion: suggestion}
}

type commandError struct {
	operation  string
	context    string
	cause      error
	suggestion string
}

func (e *commandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed to %s: %s", e.operation, e.context)
	if e.cause != nil {
		fmt.Fprintf(&b, "\n\nError: %v", e.cause)
	}
	if e.suggestion != "" {
		fmt.Fprintf(&b, "\n\nSuggestion: %s", e.suggestion)
	}
	return b.String()
}

func (e *commandError) Unwrap() error {
	return e.cause
}
