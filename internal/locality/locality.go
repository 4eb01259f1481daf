// Package locality abstracts where commands run: the local machine or a remote
// host reached over SSH.
package locality

import (
	"context"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
)

// Locality executes command lines, optionally through a scheduler.
type Locality interface {
	EstablishConnection(ctx context.Context) error
	Disconnect() error

	// Execute blocks until command returns.
	Execute(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error)
	// MonitoredExecute submits command and waits on the scheduler's monitor file(s).
	MonitoredExecute(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error)
	// Dispatch submits command without waiting for the job it creates.
	Dispatch(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error)

	Copy() Locality
	Description() string
}

// Type names a locality implementation.
type Type string

const (
	TypeLocal  Type = "local"
	TypeRemote Type = "remote"
)
