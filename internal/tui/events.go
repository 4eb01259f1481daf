package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/batchrun/internal/events"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

// FromEvent translates a task event into the message the model understands.
func FromEvent(ev task.Event) tea.Msg {
	switch ev.Kind {
	case task.EventProcessStarted:
		return StageStartMsg{Name: ev.Process, Index: ev.Index, Time: ev.Time}
	case task.EventProcessEnded, task.EventProcessFailed:
		progress := model.StageProgress{
			StageName: ev.Process,
			Status:    model.StatusSuccess,
			Error:     ev.Err,
			Timestamp: ev.Time,
		}
		if ev.Run != nil {
			progress.Duration = ev.Run.Duration()
			progress.ExitValue = ev.Run.ExitValue
		}
		if ev.Kind == task.EventProcessFailed {
			progress.Status = model.StatusFailed
			progress.Message = failureMessage(ev)
		}
		return StageCompleteMsg{Progress: progress}
	default:
		return TaskStateMsg{State: ev.State, Status: ev.StatusMessage}
	}
}

func failureMessage(ev task.Event) string {
	if ev.Run != nil && ev.Run.Interrupted {
		return "interrupted"
	}
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return ev.StatusMessage
}

// Forward returns an event handler that feeds send, typically tea.Program.Send.
func Forward(send func(tea.Msg)) events.Handler {
	return func(_ context.Context, ev task.Event) error {
		send(FromEvent(ev))
		return nil
	}
}
