package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckCommandReportsExecutables(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	dir := t.TempDir()
	path := writePipeline(t, dir, localPipeline(dir, `  - name: greet
    executable: sh
    command: "sh -c 'echo hi'"
  - name: exotic
    executable: batchrun-surely-missing-tool
    command: "batchrun-surely-missing-tool --run"
`))

	out, err := executeCommand(newRootCmd(), "check", "-c", path, "--log-level", "error")
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 stage executables are unavailable")
	require.Contains(t, out, "✓ greet: sh")
	require.Contains(t, out, "✗ exotic: batchrun-surely-missing-tool not found")
}

func TestCheckCommandRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := executeCommand(newRootCmd(), "check")
	require.Error(t, err)
}
