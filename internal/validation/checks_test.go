package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "exists.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	require.NoError(t, CheckFileExists(file))
	require.NoError(t, CheckFileExists(dir))
	require.Error(t, CheckFileExists(filepath.Join(dir, "missing.txt")))
	require.Error(t, CheckFileExists(""))
}

func TestCheckNonEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	full := filepath.Join(dir, "aligned.bam")
	empty := filepath.Join(dir, "empty.bam")
	require.NoError(t, os.WriteFile(full, []byte("BAM\x01"), 0o644))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	require.NoError(t, CheckNonEmpty(full))
	require.ErrorContains(t, CheckNonEmpty(empty), "is empty")
	require.ErrorContains(t, CheckNonEmpty(dir), "is a directory")
	require.ErrorContains(t, CheckNonEmpty(filepath.Join(dir, "nope")), "does not exist")
}

func TestCheckPathContains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "content.txt")
	require.NoError(t, os.WriteFile(file, []byte("the quick brown fox"), 0o644))

	require.NoError(t, CheckPathContains(file, "quick"))
	require.NoError(t, CheckPathContains(file, `q\w+k`))
	require.Error(t, CheckPathContains(file, "lazy"))
	require.Error(t, CheckPathContains(file, "("))
	require.Error(t, CheckPathContains("", "x"))
	require.Error(t, CheckPathContains(file, ""))
}
