package components

import (
	"fmt"
	"strings"
)

// CheckStatus represents a pre-flight check outcome for summary rendering.
type CheckStatus struct {
	Passed  bool
	Message string
}

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Failed    int
	Finished  bool
	Cancelled bool
	// Status is the task's last status message.
	Status string
	Checks []CheckStatus
}

// Summary renders a textual execution summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		line := fmt.Sprintf("Stages: %d/%d completed", s.data.Completed, s.data.Total)
		if s.data.Failed > 0 {
			line = fmt.Sprintf("%s, %d failed", line, s.data.Failed)
		}
		lines = append(lines, line)
	}

	if strings.TrimSpace(s.data.Status) != "" {
		lines = append(lines, "Status: "+s.data.Status)
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Execution cancelled")
	case s.data.Finished && s.data.Total > 0:
		if s.data.Completed == s.data.Total && s.data.Failed == 0 {
			lines = append(lines, "Execution finished successfully")
		} else {
			lines = append(lines, "Execution stopped with unfinished stages")
		}
	}

	if len(s.data.Checks) > 0 {
		lines = append(lines, "Checks:")
		for _, c := range s.data.Checks {
			status := "✗"
			if c.Passed {
				status = "✓"
			}
			lines = append(lines, fmt.Sprintf("  %s %s", status, c.Message))
		}
	}

	return strings.Join(lines, "\n")
}
