package model

import (
	"fmt"
	"time"
)

// TaskResult aggregates the per-stage results of one task execution.
type TaskResult struct {
	TaskName       string             `json:"task_name"`
	Success        bool               `json:"success"`
	ProcessResults []*ExecutionResult `json:"process_results"`
	// ActualTotalRuntime is the task's own wall clock, measured around the stage loop.
	ActualTotalRuntime time.Duration `json:"actual_total_runtime"`
}

// NewTaskResult copies the supplied results so later mutation of the slice does not leak in.
func NewTaskResult(taskName string, success bool, results []*ExecutionResult, runtime time.Duration) *TaskResult {
	return &TaskResult{
		TaskName:           taskName,
		Success:            success,
		ProcessResults:     append([]*ExecutionResult(nil), results...),
		ActualTotalRuntime: runtime,
	}
}

// AllSubTasksSuccess reports whether every stage exited with code zero.
func (t *TaskResult) AllSubTasksSuccess() bool {
	for _, res := range t.ProcessResults {
		if res.ExitCode != 0 {
			return false
		}
	}
	return true
}

// TotalExternalRuntime sums the scheduler reported wall clock of every stage.
func (t *TaskResult) TotalExternalRuntime() int64 {
	var total int64
	for _, res := range t.ProcessResults {
		if res.ResourceUsage != nil {
			total += res.ResourceUsage.RunTimeSeconds
		}
	}
	return total
}

// TotalExternalCPUTime sums the scheduler reported CPU time of every stage.
func (t *TaskResult) TotalExternalCPUTime() int64 {
	var total int64
	for _, res := range t.ProcessResults {
		if res.ResourceUsage != nil {
			total += res.ResourceUsage.CPUTimeSeconds
		}
	}
	return total
}

// MaxMemUsage is the largest peak memory across stages.
func (t *TaskResult) MaxMemUsage() int {
	maxMem := 0
	for _, res := range t.ProcessResults {
		if res.ResourceUsage != nil && res.ResourceUsage.MaxMemMB > maxMem {
			maxMem = res.ResourceUsage.MaxMemMB
		}
	}
	return maxMem
}

// Report renders the human readable runtime and resource breakdown.
func (t *TaskResult) Report() []string {
	lines := []string{
		"Runtimes and resource usage for task: " + t.TaskName,
		fmt.Sprintf("  Total wall clock runtime (s): %d", int64(t.ActualTotalRuntime.Seconds())),
		fmt.Sprintf("  Total CPU time from combined sub-processes (s): %d", t.TotalExternalCPUTime()),
		fmt.Sprintf("  Max memory usage of uncombined sub-processes (MB): %d", t.MaxMemUsage()),
		"",
		fmt.Sprintf("Number of sub-processes executed for this task: %d", len(t.ProcessResults)),
		"Breakdown of sub-processes:",
		"Name\tExitCode\tJobID\tMaxMem(MB)\tWallClock(s)\tCPUTime(s)",
	}
	for _, res := range t.ProcessResults {
		lines = append(lines, res.String())
	}
	return lines
}
