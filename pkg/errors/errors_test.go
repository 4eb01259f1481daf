package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("pipeline.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "pipeline.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "pipeline.yaml:12")
}

func TestValidationErrorIncludesField(t *testing.T) {
	t.Parallel()

	err := NewValidationError("stages[1].parameters", "missing required parameter", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "stages[1].parameters", validationErr.Field)
	require.Contains(t, err.Error(), "missing required parameter")
}

func TestExecutionErrorIncludesStageContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("command failed")
	err := NewExecutionError("align", underlying)

	var executionErr *ExecutionError
	require.ErrorAs(t, err, &executionErr)
	require.Equal(t, "align", executionErr.StepID)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestProcessExecutionErrorCarriesOutputAndAbortFlag(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("exit status 3")
	pex := NewProcessExecutionError(3, "job failed", underlying).
		WithOutput([]string{"line 1", "line 2"}).
		WithHost("node07").
		CausingAbort()

	var err error = pex
	var target *ProcessExecutionError
	require.ErrorAs(t, err, &target)
	require.Equal(t, 3, target.ExitCode)
	require.Equal(t, "node07", target.Host)
	require.True(t, target.Abort)
	require.Equal(t, "line 1\nline 2", target.OutputText())
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "exit code 3")
}

func TestProcessExecutionErrorDefaults(t *testing.T) {
	t.Parallel()

	pex := NewProcessExecutionError(-1, "", nil).WithHost("")
	require.Equal(t, UnknownHost, pex.Host)
	require.False(t, pex.Abort)
	require.Equal(t, "No output captured", pex.OutputText())
	require.Equal(t, "process failed (exit code -1)", pex.Error())
}

func TestConnectionErrorIncludesTarget(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("connection refused")
	err := NewConnectionError("hpc-login:22", "connect", underlying)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "hpc-login:22", connErr.Target)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestResourceUsageErrorIncludesJob(t *testing.T) {
	t.Parallel()

	err := NewResourceUsageError("PBS", 4176, stdErrors.New("no output"))
	require.Contains(t, err.Error(), "PBS job 4176")
}

func TestUnsupportedErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewUnsupportedError("dispatch", "remote sessions cannot background jobs")
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "dispatch", unsupported.Op)
}
