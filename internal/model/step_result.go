package model

import (
	"time"
)

const (
	// StatusPending indicates a stage has not started yet.
	StatusPending = "pending"
	// StatusRunning indicates a stage is actively executing.
	StatusRunning = "running"
	// StatusSuccess marks a stage that exited with code zero.
	StatusSuccess = "success"
	// StatusSkipped indicates the task stopped before reaching the stage.
	StatusSkipped = "skipped"
	// StatusFailed marks a failure during stage execution.
	StatusFailed = "failed"
)

// StageProgress captures the live outcome of a single stage for progress rendering.
type StageProgress struct {
	StageName string
	Status    string
	Message   string
	Error     error
	ExitValue int
	Duration  time.Duration
	Timestamp time.Time
}
