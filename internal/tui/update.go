package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case StageStartMsg:
		m.ensureStage(msg.Name)
		stage := m.stages[msg.Name]
		// A retried stage counts once.
		if isSettled(stage.Status) {
			m.completed--
			if stage.Status == model.StatusFailed {
				m.failed--
			}
		}
		stage.Status = model.StatusRunning
		stage.Timestamp = msg.Time
		stage.Message = ""
		stage.Error = nil
		m.stages[msg.Name] = stage
		m.running = msg.Name
		return m, nil
	case StageCompleteMsg:
		name := msg.Progress.StageName
		if name == "" {
			return m, nil
		}
		m.ensureStage(name)
		if !isSettled(m.stages[name].Status) {
			m.completed++
			if msg.Progress.Status == model.StatusFailed {
				m.failed++
			}
		}
		m.stages[name] = msg.Progress
		if m.running == name {
			m.running = ""
		}
		return m, nil
	case TaskStateMsg:
		m.state = msg.State
		m.status = msg.Status
		return m, nil
	case DoneMsg:
		m.err = msg.Err
		m.finished = true
		m.running = ""
		m.skipPending()
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			if m.nonInteractive || m.cancel == nil {
				m.finished = true
				return m, tea.Quit
			}
			return m, nil
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}
