// Package tui renders live pipeline progress with Bubbletea.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

// StageStartMsg indicates a stage has been submitted or started.
type StageStartMsg struct {
	Name  string
	Index int
	Time  time.Time
}

// StageCompleteMsg reports that a stage attempt has finished, successfully or not.
type StageCompleteMsg struct {
	Progress model.StageProgress
}

// TaskStateMsg carries a task state transition.
type TaskStateMsg struct {
	State  task.State
	Status string
}

// DoneMsg signals that Execute has returned. The program quits after rendering it.
type DoneMsg struct {
	Err error
}

type tickMsg struct{}

// Model contains the Bubbletea state for a running task.
type Model struct {
	title          string
	stages         map[string]model.StageProgress
	order          []string
	total          int
	completed      int
	failed         int
	running        string
	state          task.State
	status         string
	err            error
	width          int
	finished       bool
	cancelled      bool
	nonInteractive bool
	cancel         context.CancelFunc
}

// NewModel tracks every stage of pipeline. Stages before firstIndex were
// completed by an earlier run and start out skipped.
func NewModel(pipeline *task.Pipeline, firstIndex int, nonInteractive bool) Model {
	m := Model{
		title:          "Execution",
		stages:         make(map[string]model.StageProgress),
		order:          make([]string, 0),
		nonInteractive: nonInteractive,
	}
	if pipeline == nil {
		return m
	}
	if pipeline.Name != "" {
		m.title = pipeline.Name
	}
	for i, stage := range pipeline.Stages {
		if stage == nil {
			continue
		}
		m.ensureStage(stage.Name())
		if i < firstIndex {
			m.stages[stage.Name()] = model.StageProgress{StageName: stage.Name(), Status: model.StatusSkipped, Message: "done in an earlier run"}
			m.completed++
		}
	}
	return m
}

// WithCancel returns a copy that calls cancel when the user interrupts.
func (m Model) WithCancel(cancel context.CancelFunc) Model {
	m.cancel = cancel
	return m
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalStages returns the number of stages tracked by the model.
func (m Model) TotalStages() int {
	return m.total
}

// CompletedStages returns the number of stages that finished, including failures.
func (m Model) CompletedStages() int {
	return m.completed
}

// IsFinished reports whether execution has returned.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m *Model) ensureStage(name string) {
	if name == "" {
		return
	}
	if _, exists := m.stages[name]; !exists {
		m.stages[name] = model.StageProgress{StageName: name, Status: model.StatusPending}
		m.order = append(m.order, name)
		m.total++
	}
}

// skipPending marks stages the task never reached.
func (m *Model) skipPending() {
	for _, name := range m.order {
		stage := m.stages[name]
		if stage.Status == model.StatusPending {
			stage.Status = model.StatusSkipped
			m.stages[name] = stage
		}
	}
}

func isSettled(status string) bool {
	return status == model.StatusSuccess || status == model.StatusSkipped || status == model.StatusFailed
}
