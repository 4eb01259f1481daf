package model

import (
	"fmt"
	"os"
	"strings"
)

// UnknownJobID marks a result whose scheduler job id could not be determined.
const UnknownJobID = -1

// ExecutionResult is the outcome of one command execution, scheduled or not.
type ExecutionResult struct {
	Name          string         `json:"name"`
	ExitCode      int            `json:"exit_code"`
	Output        []string       `json:"output,omitempty"`
	OutputFile    string         `json:"output_file,omitempty"`
	JobID         int            `json:"job_id"`
	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`
}

// NewExecutionResult builds a result with an unknown job id and no usage.
func NewExecutionResult(name string, exitCode int, output []string, outputFile string) *ExecutionResult {
	return &ExecutionResult{
		Name:       name,
		ExitCode:   exitCode,
		Output:     output,
		OutputFile: outputFile,
		JobID:      UnknownJobID,
	}
}

// WithJobID sets the scheduler job id.
func (r *ExecutionResult) WithJobID(jobID int) *ExecutionResult {
	r.JobID = jobID
	return r
}

// FirstOutputLine returns the first captured line, or "" when there is no output.
func (r *ExecutionResult) FirstOutputLine() string {
	if r == nil || len(r.Output) == 0 {
		return ""
	}
	return r.Output[0]
}

// WriteOutputToFile persists the captured output one line per row and records the file.
func (r *ExecutionResult) WriteOutputToFile(path string) error {
	content := strings.Join(r.Output, "\n")
	if len(r.Output) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write output to %s: %w", path, err)
	}
	r.OutputFile = path
	return nil
}

// String renders the report row: name, exit code, job id, memory, wall clock, CPU.
func (r *ExecutionResult) String() string {
	return fmt.Sprintf("%s\t%d\t%d\t%s", r.Name, r.ExitCode, r.JobID, r.ResourceUsage.String())
}

// MultiWaitResult pairs the result of a dependency wait job with the results of
// the jobs it waited on.
type MultiWaitResult struct {
	WaitResult *ExecutionResult   `json:"wait_result"`
	JobResults []*ExecutionResult `json:"job_results"`
}
