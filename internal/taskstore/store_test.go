package taskstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

type okRunner struct{}

func (okRunner) RunStage(_ context.Context, p process.Process, _ map[string]string, _ *execution.Context) (*model.ExecutionResult, error) {
	return model.NewExecutionResult(p.Name(), 0, nil, ""), nil
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "nested", "tasks.json"))
	require.NoError(t, err)
	assert.Empty(t, store.List())
	_, err = store.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.json")
	store, err := Open(path)
	require.NoError(t, err)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Put(task.Snapshot{ID: "a", Pipeline: "wgs", State: task.StatePaused, CurrentIndex: 2, Created: created})
	store.Put(task.Snapshot{ID: "b", Pipeline: "wgs", State: task.StateCompleted, Created: created.Add(time.Hour)})
	store.Put(task.Snapshot{ID: "a", Pipeline: "wgs", State: task.StateFailed, CurrentIndex: 3, Created: created})
	require.NoError(t, store.Save())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reloaded, err := Open(path)
	require.NoError(t, err)
	require.Len(t, reloaded.List(), 2)

	snap, err := reloaded.Get("a")
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, snap.State)
	assert.Equal(t, 3, snap.CurrentIndex)
	assert.True(t, snap.Created.Equal(created))

	latest, err := reloaded.Latest("wgs")
	require.NoError(t, err)
	assert.Equal(t, "a", latest.ID)

	_, err = reloaded.Latest("rnaseq")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, reloaded.Remove("a"))
	require.ErrorIs(t, reloaded.Remove("a"), ErrNotFound)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestRecordTracksTaskThroughEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.json")
	store, err := Open(path)
	require.NoError(t, err)

	stage, err := process.NewCommandProcess("align", "bwa", "bwa mem", nil)
	require.NoError(t, err)
	pipeline := task.NewPipeline("wgs", stage)

	record := func(ev task.Event) { require.NoError(t, store.Record(context.Background(), ev)) }
	tk, err := task.New(pipeline, nil, okRunner{}, task.WithListener(task.ListenerFuncs{
		OnStateChanged:   record,
		OnProcessStarted: record,
		OnProcessEnded:   record,
		OnProcessFailed:  record,
	}))
	require.NoError(t, err)
	tk.Submit()
	_, err = tk.Execute(context.Background(), nil)
	require.NoError(t, err)

	reloaded, err := Open(path)
	require.NoError(t, err)
	snap, err := reloaded.Get(tk.ID())
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, snap.State)
	assert.Equal(t, 1, snap.CurrentIndex)
	require.Len(t, snap.Runs, 1)
	assert.Equal(t, "align", snap.Runs[0].ProcessName)
}
