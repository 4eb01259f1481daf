package task

import "time"

// ProcessRun records one attempt at one stage.
type ProcessRun struct {
	ProcessName  string    `json:"process_name"`
	Submitter    string    `json:"submitter"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitzero"`
	ExitValue    int       `json:"exit_value"`
	ErrorMessage string    `json:"error_message,omitempty"`
	// Interrupted attempts were cut short by cancellation and never reported an outcome.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Finished reports whether the attempt reached an end, successful or not.
func (r ProcessRun) Finished() bool {
	return !r.End.IsZero() && !r.Interrupted
}

// Duration is End minus Start, or zero while running.
func (r ProcessRun) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}
