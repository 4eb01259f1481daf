package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

func testPipeline(t *testing.T, names ...string) *task.Pipeline {
	t.Helper()
	stages := make([]process.Process, 0, len(names))
	for _, name := range names {
		p, err := process.NewCommandProcess(name, "echo", "echo "+name, nil)
		require.NoError(t, err)
		stages = append(stages, p)
	}
	return task.NewPipeline("rnaseq", stages...)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestNewModelTracksStages(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split", "align", "merge"), 0, false)
	require.Equal(t, "rnaseq", m.title)
	require.Equal(t, 3, m.TotalStages())
	require.Zero(t, m.CompletedStages())
	require.Equal(t, []string{"split", "align", "merge"}, m.order)
	require.Equal(t, model.StatusPending, m.stages["align"].Status)
	require.NotNil(t, m.Init())
}

func TestNewModelSkipsStagesBeforeResumePoint(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split", "align", "merge"), 2, false)
	require.Equal(t, 2, m.CompletedStages())
	require.Equal(t, model.StatusSkipped, m.stages["split"].Status)
	require.Equal(t, model.StatusPending, m.stages["merge"].Status)
}

func TestNewModelWithoutPipeline(t *testing.T) {
	t.Parallel()

	m := NewModel(nil, 0, true)
	require.Equal(t, "Execution", m.title)
	require.Zero(t, m.TotalStages())
}

func TestModelTracksStageLifecycle(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split", "align"), 0, false)

	m, _ = update(t, m, StageStartMsg{Name: "split", Time: time.Now()})
	require.Equal(t, model.StatusRunning, m.stages["split"].Status)
	require.Equal(t, "split", m.running)

	m, _ = update(t, m, StageCompleteMsg{Progress: model.StageProgress{StageName: "split", Status: model.StatusSuccess}})
	require.Equal(t, 1, m.CompletedStages())
	require.Empty(t, m.running)

	m, _ = update(t, m, StageStartMsg{Name: "align"})
	m, _ = update(t, m, StageCompleteMsg{Progress: model.StageProgress{StageName: "align", Status: model.StatusFailed, ExitValue: 3}})
	require.Equal(t, 2, m.CompletedStages())
	require.Equal(t, 1, m.failed)

	// retry of the failed stage
	m, _ = update(t, m, StageStartMsg{Name: "align"})
	require.Equal(t, 1, m.CompletedStages())
	require.Zero(t, m.failed)
	m, _ = update(t, m, StageCompleteMsg{Progress: model.StageProgress{StageName: "align", Status: model.StatusSuccess}})
	require.Equal(t, 2, m.CompletedStages())
	require.Zero(t, m.failed)
}

func TestModelIgnoresAnonymousCompletion(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split"), 0, false)
	m, _ = update(t, m, StageCompleteMsg{})
	require.Zero(t, m.CompletedStages())
}

func TestModelDoneQuitsAndSkipsPending(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split", "align"), 0, false)
	m, _ = update(t, m, TaskStateMsg{State: task.StateFailed, Status: "Failed at 'split'"})
	require.Equal(t, "Failed at 'split'", m.status)

	m, cmd := update(t, m, DoneMsg{Err: errors.New("boom")})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.True(t, m.IsFinished())
	require.Equal(t, model.StatusSkipped, m.stages["align"].Status)
}

func TestModelInterruptCancelsTask(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := NewModel(testPipeline(t, "split"), 0, false).WithCancel(cancel)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Nil(t, cmd)
	require.True(t, m.Cancelled())
	require.False(t, m.IsFinished())
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestModelInterruptWithoutCancelQuits(t *testing.T) {
	t.Parallel()

	m := NewModel(testPipeline(t, "split"), 0, false)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.True(t, m.IsFinished())
}

func TestModelRecordsWidth(t *testing.T) {
	t.Parallel()

	m := NewModel(nil, 0, false)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	require.Equal(t, 120, m.width)

	m, cmd := update(t, m, tea.QuitMsg{})
	require.Nil(t, cmd)
	require.True(t, m.IsFinished())
}
