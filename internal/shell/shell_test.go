package shell

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

func TestExecutorRunSuccess(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res, err := Default.Run(context.Background(), "echo hello world")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"hello world"}, res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Equal(t, []string{"hello world"}, res.Combined)
}

func TestExecutorRunSeparatesStreams(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res, err := Default.Run(context.Background(), "echo out; echo 'error message' >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, []string{"out"}, res.Stdout)
	assert.Equal(t, []string{"error message"}, res.Stderr)
	assert.ElementsMatch(t, []string{"out", "error message"}, res.Combined)
}

func TestExecutorRunUsesEnvAndDir(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	dir := t.TempDir()
	exec := Executor{Env: map[string]string{"BATCHRUN_TEST": "value"}, Dir: dir}

	res, err := exec.Run(context.Background(), "echo $BATCHRUN_TEST; pwd")
	require.NoError(t, err)
	require.Len(t, res.Stdout, 2)
	assert.Equal(t, "value", res.Stdout[0])
	assert.Contains(t, res.Stdout[1], dir[len(dir)-8:])
}

func TestExecutorRunCancelled(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := Default.Run(ctx, "sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
}

func TestDetermineExplicitShell(t *testing.T) {
	t.Parallel()

	sh, args, err := Determine("/bin/zsh")
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", sh)
	assert.Equal(t, []string{"-c"}, args)
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}

func TestRunnerFunc(t *testing.T) {
	t.Parallel()

	var seen string
	runner := RunnerFunc(func(_ context.Context, command string) (Result, error) {
		seen = command
		return Result{Stdout: []string{"ok"}}, nil
	})

	res, err := runner.Run(context.Background(), "tracejob 1")
	require.NoError(t, err)
	assert.Equal(t, "tracejob 1", seen)
	assert.Equal(t, []string{"ok"}, res.Stdout)
}
