package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/task"
	"github.com/alexisbeaulieu97/batchrun/internal/taskstore"
)

func TestListCommandEmptyStore(t *testing.T) {
	t.Parallel()

	out, err := executeCommand(newRootCmd(), "list", "--state", filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)
	require.Contains(t, out, "No tasks recorded yet.")
}

func TestListCommandRendersSnapshots(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "tasks.json")
	store, err := taskstore.Open(statePath)
	require.NoError(t, err)
	store.Put(task.Snapshot{ID: "older", Pipeline: "demo", State: task.StateCompleted, Status: "Complete", CurrentIndex: 3, Created: time.Now().Add(-2 * time.Hour)})
	store.Put(task.Snapshot{ID: "newer", Pipeline: "demo", State: task.StatePaused, Status: "Paused before 'align'", CurrentIndex: 1, Created: time.Now()})
	require.NoError(t, store.Save())

	out, err := executeCommand(newRootCmd(), "list", "--state", statePath)
	require.NoError(t, err)
	require.Contains(t, out, "PIPELINE")
	require.Contains(t, out, "PAUSED")
	require.Contains(t, out, "Paused before 'align'")
	require.Contains(t, out, "2h ago")
	require.Less(t, strings.Index(out, "newer"), strings.Index(out, "older"))

	out, err = executeCommand(newRootCmd(), "list", "--state", statePath, "--json")
	require.NoError(t, err)
	var payload listJSONPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, 2, payload.Count)
	require.Equal(t, "newer", payload.Tasks[0].ID)
	require.Equal(t, task.StatePaused, payload.Tasks[0].State)
}

func TestFormatRelativeTime(t *testing.T) {
	t.Parallel()

	require.Equal(t, "never", formatRelativeTime(time.Time{}))
	require.Equal(t, "just now", formatRelativeTime(time.Now()))
	require.Equal(t, "5m ago", formatRelativeTime(time.Now().Add(-5*time.Minute-time.Second)))
}

