package task

import (
	"fmt"
	"strings"
)

// State is the lifecycle position of a task.
type State int

const (
	StateCreated State = iota
	StateSubmitted
	StateRunning
	StateRecovered
	StatePaused
	StateCompleted
	StateFailed
	StateAborted
)

var stateNames = map[State]string{
	StateCreated:   "CREATED",
	StateSubmitted: "SUBMITTED",
	StateRunning:   "RUNNING",
	StateRecovered: "RECOVERED",
	StatePaused:    "PAUSED",
	StateCompleted: "COMPLETED",
	StateFailed:    "FAILED",
	StateAborted:   "ABORTED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resumable reports whether a task in this state may execute again.
func (s State) Resumable() bool {
	switch s {
	case StateSubmitted, StateRunning, StateRecovered, StatePaused, StateFailed:
		return true
	default:
		return false
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown task state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for state, candidate := range stateNames {
		if candidate == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", string(text))
}
