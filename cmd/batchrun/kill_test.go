package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKillCommandDryRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scheduler string
		expected  string
	}{
		{"PBS", "qdel 4176\nqdel 4177\n"},
		{"lsf", "bkill 4176\nbkill 4177\n"},
		{"SLURM", "scancel 4176\nscancel 4177\n"},
		{"OGE", "qdel 4176\nqdel 4177\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.scheduler, func(t *testing.T) {
			t.Parallel()
			out, err := executeCommand(newRootCmd(), "kill", "--log-level", "error", "--scheduler", tt.scheduler, "--dry-run", "4176", "4177")
			require.NoError(t, err)
			require.Equal(t, tt.expected, out)
		})
	}
}

func TestKillCommandUsesPipelineScheduler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writePipeline(t, dir, `name: demo
environment:
  scheduler:
    type: slurm
stages:
  - name: s
    executable: echo
    command: echo
`)
	out, err := executeCommand(newRootCmd(), "kill", "--log-level", "error", "-c", path, "--dry-run", "99")
	require.NoError(t, err)
	require.Equal(t, "scancel 99\n", out)
}

func TestKillCommandErrors(t *testing.T) {
	t.Parallel()

	_, err := executeCommand(newRootCmd(), "kill", "--dry-run", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scheduler selected")

	_, err = executeCommand(newRootCmd(), "kill", "--scheduler", "condor", "1")
	require.Error(t, err)

	_, err = executeCommand(newRootCmd(), "kill", "--scheduler", "PBS")
	require.Error(t, err)
}
