package task

import (
	"fmt"
	"time"

	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// Snapshot is the persistent form of a task's execution position.
type Snapshot struct {
	ID           string       `json:"id"`
	Pipeline     string       `json:"pipeline"`
	State        State        `json:"state"`
	Status       string       `json:"status"`
	FirstIndex   int          `json:"first_index"`
	CurrentIndex int          `json:"current_index"`
	Submitted    bool         `json:"submitted"`
	Paused       bool         `json:"paused"`
	Runs         []ProcessRun `json:"runs"`
	Created      time.Time    `json:"created"`
	SubmittedAt  time.Time    `json:"submitted_at,omitzero"`
	StartedAt    time.Time    `json:"started_at,omitzero"`
	CompletedAt  time.Time    `json:"completed_at,omitzero"`
}

// Snapshot captures the task's current position.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:           t.id,
		Pipeline:     t.pipeline.Name,
		State:        t.state,
		Status:       t.status,
		FirstIndex:   t.firstIndex,
		CurrentIndex: t.currentIndex,
		Submitted:    t.isSubmitted,
		Paused:       t.paused,
		Runs:         append([]ProcessRun(nil), t.runs...),
		Created:      t.created,
		SubmittedAt:  t.submitted,
		StartedAt:    t.started,
		CompletedAt:  t.completed,
	}
}

// Restore rebuilds a task from a snapshot taken of the same pipeline. A snapshot
// saved while RUNNING restores as RUNNING so the next Execute takes the recovery path.
// A FAILED snapshot restores with its stage pointer on the earliest stage whose last
// attempt failed or was interrupted, so that stage runs again.
func Restore(pipeline *Pipeline, params map[string]string, runner StageRunner, snap Snapshot, opts ...Option) (*Task, error) {
	t, err := New(pipeline, params, runner, append(opts, WithID(snap.ID))...)
	if err != nil {
		return nil, err
	}
	if snap.Pipeline != pipeline.Name {
		return nil, batcherrors.NewValidationError("pipeline", fmt.Sprintf("snapshot belongs to pipeline %q, not %q", snap.Pipeline, pipeline.Name), nil)
	}
	if snap.FirstIndex < 0 || snap.CurrentIndex < snap.FirstIndex || snap.CurrentIndex > len(pipeline.Stages) {
		return nil, batcherrors.NewValidationError("current_index", fmt.Sprintf("stage index %d out of range", snap.CurrentIndex), nil)
	}

	t.state = snap.State
	t.status = snap.Status
	t.firstIndex = snap.FirstIndex
	t.currentIndex = snap.CurrentIndex
	t.isSubmitted = snap.Submitted
	t.paused = snap.Paused
	t.runs = append([]ProcessRun(nil), snap.Runs...)
	t.created = snap.Created
	t.submitted = snap.SubmittedAt
	t.started = snap.StartedAt
	t.completed = snap.CompletedAt
	if t.state == StateFailed {
		t.rewindToFailureLocked()
	}
	return t, nil
}

// rewindToFailureLocked moves the stage pointer back to the earliest stage before
// it whose most recent attempt did not succeed.
func (t *Task) rewindToFailureLocked() {
	latest := make(map[string]ProcessRun, len(t.runs))
	for _, run := range t.runs {
		latest[run.ProcessName] = run
	}
	for i := t.firstIndex; i < t.currentIndex; i++ {
		run, ok := latest[t.pipeline.Stages[i].Name()]
		if !ok {
			continue
		}
		if !run.Finished() || run.ExitValue != 0 {
			t.log.Debugf("rewinding to failed process %q (execution index = %d)", run.ProcessName, i)
			t.currentIndex = i
			t.paused = false
			return
		}
	}
}
