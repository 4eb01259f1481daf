// Package service runs commands and processes through an execution context and
// collects their results.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/locality"
	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// BuildCommandExitCode is reported when a process command line cannot be rendered.
const BuildCommandExitCode = 3

// ProcessService executes one command through a context: it connects the
// locality, wraps the command for the scheduler, waits or dispatches, attaches
// resource usage and disconnects.
type ProcessService struct {
	log *logger.Logger
}

// NewProcessService creates a ProcessService.
func NewProcessService(log *logger.Logger) *ProcessService {
	return &ProcessService{log: log.Component("service.process")}
}

// ExecuteProcess renders p with params, prefixes any configured pre-command and executes it.
func (s *ProcessService) ExecuteProcess(ctx context.Context, p process.Process, params map[string]string, ec *execution.Context) (*model.ExecutionResult, error) {
	command, err := s.BuildCommand(p, params, ec)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, command, ec)
}

// BuildCommand renders p and prefixes the pre-command configured for it in ec.
func (s *ProcessService) BuildCommand(p process.Process, params map[string]string, ec *execution.Context) (string, error) {
	command, err := p.FullCommand(params)
	if err != nil {
		return "", batcherrors.NewProcessExecutionError(BuildCommandExitCode, "Could not build command from supplied parameters", err)
	}

	if pre := ec.External().Command(p.Name()); pre != "" {
		command = pre + "; " + command
		s.log.Debugf("added pre-command %q to process %q", pre, p.Name())
	}
	return command, nil
}

// Execute runs command through a private copy of ec. A context without a locality
// logs a warning and returns a nil result.
func (s *ProcessService) Execute(ctx context.Context, command string, ec *execution.Context) (*model.ExecutionResult, error) {
	ec = ec.Copy()
	loc := ec.Locality()
	if loc == nil {
		s.log.Warnf("no locality specified in execution context, will not execute command: %s", command)
		return nil, nil
	}

	if err := loc.EstablishConnection(ctx); err != nil {
		message := fmt.Sprintf("Could not establish connection to %s. Command %s will not be submitted.", loc.Description(), command)
		return nil, batcherrors.NewProcessExecutionError(-1, message, err)
	}

	result, err := s.run(ctx, command, ec, loc)

	if derr := loc.Disconnect(); derr != nil {
		connErr := batcherrors.NewConnectionError(loc.Description(), "disconnect", derr)
		if err == nil {
			return nil, batcherrors.NewProcessExecutionError(-1, "Command was submitted but could not disconnect the terminal session. Future jobs may not work.", connErr)
		}
		s.log.Error(connErr, "could not disconnect after failed execution")
	}
	return result, err
}

func (s *ProcessService) run(ctx context.Context, command string, ec *execution.Context, loc locality.Locality) (*model.ExecutionResult, error) {
	jobName := ec.JobName()

	if sched := ec.Scheduler(); sched != nil {
		toExecute := sched.CreateCommand(command, ec.Foreground())

		if !ec.Foreground() {
			s.log.Infof("running scheduled command in background [%s]", toExecute)
			result, err := loc.Dispatch(ctx, jobName, toExecute, sched)
			if err != nil {
				return nil, err
			}
			s.log.Debugf("dispatched %q, output: %s", command, strings.Join(result.Output, "\n"))
			return result, nil
		}

		s.log.Infof("running scheduled job %q in foreground [%s]", jobName, toExecute)
		var (
			result *model.ExecutionResult
			err    error
		)
		if sched.UsesFileMonitor() {
			result, err = loc.MonitoredExecute(ctx, jobName, toExecute, sched)
		} else {
			result, err = loc.Execute(ctx, jobName, toExecute, sched)
		}
		if err != nil {
			return nil, err
		}

		result.ResourceUsage = scheduler.ResourceUsage(ctx, sched, result, s.log)
		if result.ResourceUsage != nil {
			s.log.Debugf("resource usage for job %q: %s", jobName, result.ResourceUsage.Verbose())
		}
		s.log.Debugf("finished executing job %q", jobName)
		return result, nil
	}

	if !ec.Foreground() {
		return nil, batcherrors.NewUnsupportedError("dispatch", "unscheduled commands can only run in the foreground")
	}

	s.log.Infof("running command in foreground [%s]", command)
	result, err := loc.Execute(ctx, jobName, command, nil)
	if err != nil {
		return nil, err
	}
	if monitorFile := ec.MonitorFile(); monitorFile != "" {
		if err := result.WriteOutputToFile(monitorFile); err != nil {
			return nil, batcherrors.NewProcessExecutionError(-1, "could not persist command output", err)
		}
		s.log.Debugf("output from %q written to %s", command, monitorFile)
	}
	return result, nil
}

// WaitFor submits a job that only starts once cond is satisfied and blocks until it finishes.
func (s *ProcessService) WaitFor(ctx context.Context, cond string, ec *execution.Context) (*model.ExecutionResult, error) {
	sched := ec.Scheduler()
	if sched == nil {
		return nil, batcherrors.NewUnsupportedError("wait", "waiting requires a scheduler")
	}
	if ec.Locality() == nil {
		return nil, batcherrors.NewUnsupportedError("wait", "no locality specified in execution context")
	}

	// The wait job itself is never an array and carries no dependency of its own.
	ec = ec.Copy()
	sched = ec.Scheduler()
	sched.Args().JobArray = nil
	sched.Args().WaitCondition = ""

	waitCommand := sched.CreateWaitCommand(cond)
	s.log.Infof("waiting for %s [%s]", cond, waitCommand)
	return ec.Locality().MonitoredExecute(ctx, "wait", waitCommand, sched)
}

// ExecuteScheduledWait waits for dependent jobs and back-fills their resource usage.
// The wait condition is built from the jobs' ids when the scheduler reports ids,
// otherwise cond is used literally.
func (s *ProcessService) ExecuteScheduledWait(ctx context.Context, dependent []*model.ExecutionResult, cond string, status scheduler.ExitStatus, ec *execution.Context) (*model.MultiWaitResult, error) {
	sched := ec.Scheduler()
	if sched == nil {
		return nil, batcherrors.NewUnsupportedError("scheduled wait", "cannot dispatch a scheduled wait job without using a scheduler")
	}

	var condition string
	if sched.GeneratesJobIDFromOutput() || sched.GeneratesJobIDFromError() {
		ids := make([]int, 0, len(dependent))
		for _, res := range dependent {
			if res != nil {
				ids = append(ids, res.JobID)
			}
		}
		condition = sched.CreateWaitConditionForJobs(status, ids)
	} else {
		condition = sched.CreateWaitCondition(status, cond)
	}

	waitResult, err := s.WaitFor(ctx, condition, ec)
	if err != nil {
		return nil, err
	}

	for _, res := range dependent {
		if res != nil {
			res.ResourceUsage = scheduler.ResourceUsage(ctx, sched, res, s.log)
		}
	}
	return &model.MultiWaitResult{WaitResult: waitResult, JobResults: dependent}, nil
}

// IsLocalProcessOperational checks that p's executable resolves after its pre-command runs.
func (s *ProcessService) IsLocalProcessOperational(ctx context.Context, p process.Process, ec *execution.Context) bool {
	preCommand := ""
	if pre := ec.External().Command(p.Name()); pre != "" {
		preCommand = pre + "; "
		s.log.Debugf("added pre-command %q to process %q with executable %q", pre, p.Name(), p.Executable())
	}
	return s.ExecutableOnPath(ctx, p.Executable(), preCommand, ec)
}

// ExecutableOnPath runs "which" for executable through ec.
func (s *ProcessService) ExecutableOnPath(ctx context.Context, executable, preCommand string, ec *execution.Context) bool {
	result, err := s.Execute(ctx, preCommand+"which "+executable, ec)
	if err != nil {
		s.log.Error(err, "error occurred trying to determine if process was operational")
		return false
	}
	if result == nil || len(result.Output) == 0 {
		return false
	}
	first := result.Output[0]
	return !(strings.Contains(first, " no ") && strings.Contains(first, " in "))
}

// MakeLinkCommand returns a forced symbolic link command between absolute paths.
func (s *ProcessService) MakeLinkCommand(input, output string) string {
	return "ln -s -f " + absolute(input) + " " + absolute(output)
}

// CreateLocalSymbolicLink links output to input on this machine.
func (s *ProcessService) CreateLocalSymbolicLink(ctx context.Context, input, output string) error {
	local := execution.New(locality.NewLocal(locality.WithLogger(s.log)), nil, true)
	_, err := s.Execute(ctx, s.MakeLinkCommand(input, output), local)
	return err
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
