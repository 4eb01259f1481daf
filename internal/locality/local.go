package locality

import (
	"context"
	"fmt"
	"os"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	"github.com/alexisbeaulieu97/batchrun/internal/shell"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

const (
	arrayExitFailed  = 1
	arrayExitErrored = 2
)

// Local runs commands on this machine through the shell.
type Local struct {
	runner shell.Runner
	log    *logger.Logger
}

// LocalOption configures a Local.
type LocalOption func(*Local)

// WithRunner swaps the shell runner.
func WithRunner(runner shell.Runner) LocalOption {
	return func(l *Local) {
		if runner != nil {
			l.runner = runner
		}
	}
}

// WithLogger injects the logger.
func WithLogger(log *logger.Logger) LocalOption {
	return func(l *Local) {
		l.log = log.Component("locality.local")
	}
}

// NewLocal creates a Local locality.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{runner: shell.Default}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EstablishConnection is a no-op.
func (l *Local) EstablishConnection(context.Context) error { return nil }

// Disconnect is a no-op.
func (l *Local) Disconnect() error { return nil }

// Copy returns a Local sharing the runner and logger; Local holds no connection state.
func (l *Local) Copy() Locality {
	return &Local{runner: l.runner, log: l.log}
}

// Description always reports localhost.
func (l *Local) Description() string { return "localhost" }

// Execute runs command, capturing merged output. A non-zero exit becomes a
// ProcessExecutionError. With a scheduler, the job id is read from the stream
// the scheduler prints it on.
func (l *Local) Execute(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error) {
	l.log.Debugf("executing %q", command)

	res, err := l.runner.Run(ctx, command)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, batcherrors.NewProcessExecutionError(-1, "failed to execute job", err).
			WithOutput(res.Combined).
			WithHost(hostname())
	}
	if res.ExitCode != 0 {
		message := fmt.Sprintf("Failed to execute job (exited with exit code: %d)", res.ExitCode)
		pex := batcherrors.NewProcessExecutionError(res.ExitCode, message, nil).
			WithOutput(res.Combined).
			WithHost(hostname())
		l.log.Error(pex, message)
		return nil, pex
	}

	result := model.NewExecutionResult(name, 0, res.Combined, "")
	if s != nil {
		var lines []string
		switch {
		case s.GeneratesJobIDFromError():
			lines = res.Stderr
		case s.GeneratesJobIDFromOutput():
			lines = res.Stdout
		}
		if id, ok := scheduler.ExtractJobID(s, lines); ok {
			result.JobID = id
			l.log.Debugf("job id detected: %d", id)
		}
		if args := s.Args(); args != nil {
			result.OutputFile = args.MonitorFile
		}
	}
	return result, nil
}

// Dispatch submits like Execute; the scheduler owns the job once the submission returns.
func (l *Local) Dispatch(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error) {
	return l.Execute(ctx, name, command, s)
}

// MonitoredExecute submits command and, for file monitoring schedulers, waits on
// one monitor per array index (or one for a single job).
func (l *Local) MonitoredExecute(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error) {
	if s == nil {
		return nil, batcherrors.NewUnsupportedError("monitored execute", "a scheduler is required")
	}

	if s.UsesFileMonitor() && s.Args().MonitorFile == "" {
		return nil, batcherrors.NewValidationError("monitor_file", fmt.Sprintf("%s jobs are monitored through a file but none was set", s.Name()), nil)
	}

	var adapters []*monitor.Adapter
	jobArray := s.Args().JobArray
	if s.UsesFileMonitor() {
		if jobArray != nil {
			for _, index := range jobArray.Indices() {
				adapters = append(adapters, s.CreateProcessAdapter(index))
			}
		} else {
			adapters = append(adapters, s.CreateProcessAdapter(-1))
		}
		for _, adapter := range adapters {
			if err := adapter.Reset(); err != nil {
				return nil, batcherrors.NewProcessExecutionError(-1, "could not prepare monitor file", err)
			}
		}
	}

	submitted, err := l.Execute(ctx, name, command, s)
	if err != nil {
		return nil, err
	}
	if !s.UsesFileMonitor() {
		return submitted, nil
	}

	if jobArray != nil {
		return l.waitForArray(ctx, name, s, submitted, adapters)
	}
	return l.waitForJob(ctx, name, s, submitted, adapters[0])
}

func (l *Local) waitForJob(ctx context.Context, name string, s scheduler.Scheduler, submitted *model.ExecutionResult, adapter *monitor.Adapter) (*model.ExecutionResult, error) {
	l.log.Debugf("monitoring %s, waiting for completion", adapter.File())

	exitCode, err := adapter.WaitFor(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, batcherrors.NewProcessExecutionError(-1, "monitoring failed", err)
	}
	l.log.Debugf("job %d completed with exit value %d", submitted.JobID, exitCode)

	if exitCode != 0 {
		return nil, batcherrors.NewProcessExecutionError(exitCode, fmt.Sprintf("job %d exited with code %d", submitted.JobID, exitCode), nil).
			WithOutput(adapter.Output()).
			WithHost(adapter.Host())
	}

	result := model.NewExecutionResult(name, exitCode, adapter.Output(), adapter.File()).WithJobID(submitted.JobID)
	usage, err := s.ResourceUsageFromMonitorFile(adapter.File())
	if err != nil {
		l.log.Error(batcherrors.NewResourceUsageError(s.Name(), submitted.JobID, err), "could not read resource usage from monitor file")
	}
	result.ResourceUsage = usage
	return result, nil
}

func (l *Local) waitForArray(ctx context.Context, name string, s scheduler.Scheduler, submitted *model.ExecutionResult, adapters []*monitor.Adapter) (*model.ExecutionResult, error) {
	outcomes, err := monitor.WaitAll(ctx, adapters)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		l.log.Error(err, "job array units failed to report")
	}

	exitCode, failed := aggregateArray(outcomes)
	message := "All jobs in array completed successfully."
	if exitCode != 0 {
		message = fmt.Sprintf("Job Array Error: %d out of %d jobs failed in the array.", failed, len(outcomes))
	}

	return model.NewExecutionResult(name, exitCode, []string{message}, s.Args().MonitorFile).WithJobID(submitted.JobID), nil
}

// aggregateArray reports 2 when any unit could not be monitored, 1 when any exited
// non-zero, and 0 otherwise, with the number of failed units.
func aggregateArray(outcomes []monitor.Outcome) (int, int) {
	exitCode, failed := 0, 0
	for _, outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			exitCode = arrayExitErrored
			failed++
		case outcome.ExitCode != 0:
			if exitCode == 0 {
				exitCode = arrayExitFailed
			}
			failed++
		}
	}
	return exitCode, failed
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return batcherrors.UnknownHost
	}
	return host
}
