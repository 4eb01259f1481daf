package task

import "time"

// EventKind distinguishes lifecycle notifications.
type EventKind string

const (
	EventStateChanged   EventKind = "task.state_changed"
	EventProcessStarted EventKind = "process.started"
	EventProcessEnded   EventKind = "process.ended"
	EventProcessFailed  EventKind = "process.failed"
)

// Event is a point-in-time record of a task transition. Run is a copy of the
// affected attempt, if any.
type Event struct {
	Kind          EventKind
	Task          *Task
	TaskID        string
	TaskName      string
	State         State
	StatusMessage string
	Process       string
	Index         int
	Run           *ProcessRun
	Err           error
	Time          time.Time
}

// Listener receives task events synchronously. Implementations may call back
// into the task, for example to pause it.
type Listener interface {
	StateChanged(Event)
	ProcessStarted(Event)
	ProcessEnded(Event)
	ProcessFailed(Event)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnStateChanged   func(Event)
	OnProcessStarted func(Event)
	OnProcessEnded   func(Event)
	OnProcessFailed  func(Event)
}

func (l ListenerFuncs) StateChanged(e Event) {
	if l.OnStateChanged != nil {
		l.OnStateChanged(e)
	}
}

func (l ListenerFuncs) ProcessStarted(e Event) {
	if l.OnProcessStarted != nil {
		l.OnProcessStarted(e)
	}
}

func (l ListenerFuncs) ProcessEnded(e Event) {
	if l.OnProcessEnded != nil {
		l.OnProcessEnded(e)
	}
}

func (l ListenerFuncs) ProcessFailed(e Event) {
	if l.OnProcessFailed != nil {
		l.OnProcessFailed(e)
	}
}

func dispatch(l Listener, e Event) {
	switch e.Kind {
	case EventProcessStarted:
		l.ProcessStarted(e)
	case EventProcessEnded:
		l.ProcessEnded(e)
	case EventProcessFailed:
		l.ProcessFailed(e)
	default:
		l.StateChanged(e)
	}
}
