package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Result captures the output streams and exit code of a finished command.
type Result struct {
	Stdout   []string
	Stderr   []string
	Combined []string
	ExitCode int
}

// Runner executes a command line through a shell.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, command string) (Result, error) {
	return f(ctx, command)
}

// Executor runs commands on the local machine.
type Executor struct {
	// Shell overrides shell discovery when set.
	Shell string
	// Env adds variables on top of the inherited environment.
	Env map[string]string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Stream mirrors output to the parent's stdout and stderr while collecting it.
	Stream bool
}

// Default is an Executor using the discovered shell and inherited environment.
var Default = Executor{}

// Run executes command with "<shell> -c". A non-zero exit is reported in
// Result.ExitCode with a nil error; an error means the command could not be run
// to completion at all.
func (e Executor) Run(ctx context.Context, command string) (Result, error) {
	sh, shellArgs, err := Determine(e.Shell)
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	args := append(shellArgs, command)
	cmd := exec.CommandContext(ctx, sh, args...)
	cmd.Env = buildEnv(e.Env)
	if e.Dir != "" {
		cmd.Dir = e.Dir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	combined := &lockedBuffer{}
	stdout := io.MultiWriter(&stdoutBuf, combined)
	stderr := io.MultiWriter(&stderrBuf, combined)
	if e.Stream {
		stdout = io.MultiWriter(stdout, os.Stdout)
		stderr = io.MultiWriter(stderr, os.Stderr)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	res := Result{
		Stdout:   SplitLines(stdoutBuf.String()),
		Stderr:   SplitLines(stderrBuf.String()),
		Combined: SplitLines(combined.String()),
	}

	if runErr == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("run %q: %w", command, runErr)
}

// Determine picks the shell binary and its command flag.
func Determine(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, fmt.Errorf("no suitable shell found")
}

// SplitLines breaks output into lines, dropping the trailing newline.
func SplitLines(out string) []string {
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return []string{}
	}
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func buildEnv(custom map[string]string) []string {
	env := os.Environ()
	for k, v := range custom {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
