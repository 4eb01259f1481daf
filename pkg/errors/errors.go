package errors

import (
	"fmt"
	"strings"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration and stage parameter validation issues.
// It is always raised before any external process starts.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a stage.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on stage %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnknownHost is reported when the execution host of a failed process could not be determined.
const UnknownHost = "unknown"

// ProcessExecutionError describes a submitted or dispatched command that exited non-zero
// or could not be run at all.
type ProcessExecutionError struct {
	ExitCode int
	Message  string
	Output   []string
	Host     string
	// Abort marks failures that must stop the whole task rather than just the current attempt.
	Abort bool
	Err   error
}

// NewProcessExecutionError constructs a ProcessExecutionError with no captured output.
func NewProcessExecutionError(exitCode int, message string, err error) *ProcessExecutionError {
	return &ProcessExecutionError{ExitCode: exitCode, Message: message, Host: UnknownHost, Err: err}
}

// WithOutput attaches captured process output.
func (e *ProcessExecutionError) WithOutput(output []string) *ProcessExecutionError {
	e.Output = append([]string(nil), output...)
	return e
}

// WithHost records where the process ran.
func (e *ProcessExecutionError) WithHost(host string) *ProcessExecutionError {
	if host != "" {
		e.Host = host
	}
	return e
}

// CausingAbort flags the error as task-aborting.
func (e *ProcessExecutionError) CausingAbort() *ProcessExecutionError {
	e.Abort = true
	return e
}

func (e *ProcessExecutionError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = "process failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (exit code %d): %v", msg, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
}

// OutputText joins captured output lines, or reports that none was captured.
func (e *ProcessExecutionError) OutputText() string {
	if e == nil || len(e.Output) == 0 {
		return "No output captured"
	}
	return strings.Join(e.Output, "\n")
}

// Unwrap exposes the underlying error.
func (e *ProcessExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConnectionError indicates a locality could not open or cleanly close its transport.
type ConnectionError struct {
	Target string
	Op     string
	Err    error
}

// NewConnectionError constructs a ConnectionError.
func NewConnectionError(target, op string, err error) error {
	return &ConnectionError{Target: target, Op: op, Err: err}
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("connection error: %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("connection error: %s %s", e.Op, e.Target)
}

// Unwrap exposes the underlying error.
func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResourceUsageError reports a scheduler accounting report that could not be acquired or parsed.
type ResourceUsageError struct {
	Scheduler string
	JobID     int
	Err       error
}

// NewResourceUsageError constructs a ResourceUsageError.
func NewResourceUsageError(scheduler string, jobID int, err error) error {
	return &ResourceUsageError{Scheduler: scheduler, JobID: jobID, Err: err}
}

func (e *ResourceUsageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("resource usage error [%s job %d]: %v", e.Scheduler, e.JobID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ResourceUsageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnsupportedError marks an operation the current locality or context cannot perform.
type UnsupportedError struct {
	Op     string
	Reason string
}

// NewUnsupportedError constructs an UnsupportedError.
func NewUnsupportedError(op, reason string) error {
	return &UnsupportedError{Op: op, Reason: reason}
}

func (e *UnsupportedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("unsupported operation %s: %s", e.Op, e.Reason)
}
