package model

import "fmt"

// ResourceUsage is the accounting summary reported by a scheduler for one job.
type ResourceUsage struct {
	// MaxMemMB is the peak resident memory in megabytes.
	MaxMemMB int `json:"max_mem_mb"`
	// RunTimeSeconds is the wall-clock runtime.
	RunTimeSeconds int64 `json:"run_time_s"`
	// CPUTimeSeconds is the consumed CPU time.
	CPUTimeSeconds int64 `json:"cpu_time_s"`
}

// NewResourceUsage builds a ResourceUsage value.
func NewResourceUsage(maxMemMB int, runTime, cpuTime int64) *ResourceUsage {
	return &ResourceUsage{MaxMemMB: maxMemMB, RunTimeSeconds: runTime, CPUTimeSeconds: cpuTime}
}

// String renders the tab separated report columns.
func (r *ResourceUsage) String() string {
	if r == nil {
		return "0\t0\t0"
	}
	return fmt.Sprintf("%d\t%d\t%d", r.MaxMemMB, r.RunTimeSeconds, r.CPUTimeSeconds)
}

// Verbose renders a labelled single line form.
func (r *ResourceUsage) Verbose() string {
	if r == nil {
		r = &ResourceUsage{}
	}
	return fmt.Sprintf("MaxMem(MB): %d; WallClock(s): %d; CPUTime(s): %d", r.MaxMemMB, r.RunTimeSeconds, r.CPUTimeSeconds)
}
