package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// JobIndexMarker in a job array command is replaced by the scheduler's array index variable.
const JobIndexMarker = "{JOB_INDEX}"

// Job describes how one submission is named and resourced.
type Job struct {
	Name        string
	OutputDir   string
	Threads     int
	MemoryMB    int
	RuntimeMins int
	// Parallel submits in the background and returns once the scheduler accepts the job.
	Parallel bool
	// DependsOn holds job ids that must finish (in any state) before this job starts.
	DependsOn []int
	OpenMPI   bool
}

// MonitorFile is the per-job log under OutputDir.
func (j Job) MonitorFile() string {
	return filepath.Join(j.OutputDir, j.Name+".log")
}

// StageOptions are the scheduler resources requested for one pipeline stage.
type StageOptions struct {
	Threads     int
	MemoryMB    int
	RuntimeMins int
	OpenMPI     bool
	// JobArray fans the stage out over an index range; the command may use JobIndexMarker.
	JobArray *scheduler.JobArrayArgs
}

// ExecutorService names, resources and submits jobs on private copies of an
// ambient execution context. It also runs pipeline stages for a task.
type ExecutorService struct {
	processes *ProcessService
	ec        *execution.Context
	log       *logger.Logger

	mu     sync.RWMutex
	stages map[string]StageOptions
}

// NewExecutorService creates an ExecutorService over ec.
func NewExecutorService(processes *ProcessService, ec *execution.Context, log *logger.Logger) *ExecutorService {
	return &ExecutorService{
		processes: processes,
		ec:        ec,
		log:       log.Component("service.executor"),
		stages:    make(map[string]StageOptions),
	}
}

// Context returns the ambient context; it is never mutated by submissions.
func (e *ExecutorService) Context() *execution.Context { return e.ec }

// UsingScheduler reports whether the ambient context submits jobs.
func (e *ExecutorService) UsingScheduler() bool { return e.ec.UsingScheduler() }

// SetStageOptions registers the resources for the stage named name.
func (e *ExecutorService) SetStageOptions(name string, opts StageOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opts.JobArray = opts.JobArray.Copy()
	e.stages[name] = opts
}

func (e *ExecutorService) stageOptions(name string) StageOptions {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stages[name]
}

func applyResources(args *scheduler.Args, threads, memoryMB, runtimeMins int, openMPI bool) {
	if threads > 0 {
		args.Threads = threads
	}
	if memoryMB > 0 {
		args.MemoryMB = memoryMB
	}
	if runtimeMins > 0 {
		args.EstimatedRuntimeMins = runtimeMins
	}
	if openMPI && args.Threads > 1 {
		args.OpenMPI = true
	}
}

func (e *ExecutorService) prepare(job Job) *execution.Context {
	ec := e.ec.Copy()
	ec.SetJobName(job.Name)
	ec.SetForeground(!job.Parallel)
	ec.SetMonitorFile(job.MonitorFile())

	if sched := ec.Scheduler(); sched != nil {
		args := sched.Args()
		applyResources(args, job.Threads, job.MemoryMB, job.RuntimeMins, job.OpenMPI)
		if len(job.DependsOn) > 0 {
			args.WaitCondition = sched.CreateWaitConditionForJobs(scheduler.CompletedAny, job.DependsOn)
		}
	}
	return ec
}

// substituteJobIndex replaces every JobIndexMarker with the scheduler's index
// variable, escaped so the submitting shell leaves it for the job to expand.
func substituteJobIndex(command string, sched scheduler.Scheduler) string {
	token := strings.ReplaceAll(sched.JobIndexString(), "$", `\$`)
	return strings.ReplaceAll(command, JobIndexMarker, token)
}

func validateArray(array *scheduler.JobArrayArgs) error {
	if array == nil {
		return batcherrors.NewValidationError("job_array", "job array bounds are required", nil)
	}
	if err := array.Validate(); err != nil {
		return batcherrors.NewValidationError("job_array", err.Error(), err)
	}
	return nil
}

// ExecuteProcess submits one process.
func (e *ExecutorService) ExecuteProcess(ctx context.Context, p process.Process, params map[string]string, job Job) (*model.ExecutionResult, error) {
	return e.processes.ExecuteProcess(ctx, p, params, e.prepare(job))
}

// ExecuteCommand submits one command line.
func (e *ExecutorService) ExecuteCommand(ctx context.Context, command string, job Job) (*model.ExecutionResult, error) {
	return e.processes.Execute(ctx, command, e.prepare(job))
}

// ExecuteJobArray submits command once per index of array, always in the foreground.
func (e *ExecutorService) ExecuteJobArray(ctx context.Context, command string, array *scheduler.JobArrayArgs, job Job) (*model.ExecutionResult, error) {
	if !e.UsingScheduler() {
		return nil, batcherrors.NewUnsupportedError("job array", "can't run a job array in an unscheduled environment")
	}
	if err := validateArray(array); err != nil {
		return nil, err
	}

	job.Parallel = false
	job.DependsOn = nil
	ec := e.prepare(job)
	sched := ec.Scheduler()
	sched.Args().JobArray = array.Copy()

	modified := substituteJobIndex(command, sched)
	e.log.Debugf("job array %q over %d indices: %s", job.Name, array.Size(), modified)
	return e.processes.Execute(ctx, modified, ec)
}

// ExecuteScheduledWait blocks on a wait job named name until dependent jobs reach status.
func (e *ExecutorService) ExecuteScheduledWait(ctx context.Context, dependent []*model.ExecutionResult, cond string, status scheduler.ExitStatus, name, outputDir string) (*model.MultiWaitResult, error) {
	ec := e.prepare(Job{Name: name, OutputDir: outputDir})
	return e.processes.ExecuteScheduledWait(ctx, dependent, cond, status, ec)
}

// RunStage executes one pipeline stage through ec, applying the stage's
// registered resources. Stages with a job array render their command once and
// submit it as an array in the foreground.
func (e *ExecutorService) RunStage(ctx context.Context, p process.Process, params map[string]string, ec *execution.Context) (*model.ExecutionResult, error) {
	opts := e.stageOptions(p.Name())
	if !ec.UsingScheduler() {
		if opts.JobArray != nil {
			return nil, batcherrors.NewUnsupportedError("job array", "can't run a job array in an unscheduled environment")
		}
		return e.processes.ExecuteProcess(ctx, p, params, ec)
	}

	ec = ec.Copy()
	sched := ec.Scheduler()
	applyResources(sched.Args(), opts.Threads, opts.MemoryMB, opts.RuntimeMins, opts.OpenMPI)

	if opts.JobArray == nil {
		return e.processes.ExecuteProcess(ctx, p, params, ec)
	}

	if err := validateArray(opts.JobArray); err != nil {
		return nil, err
	}
	command, err := e.processes.BuildCommand(p, params, ec)
	if err != nil {
		return nil, err
	}
	ec.SetForeground(true)
	sched.Args().JobArray = opts.JobArray.Copy()
	e.log.Debugf("stage %q runs as a job array over %d indices", p.Name(), opts.JobArray.Size())
	return e.processes.Execute(ctx, substituteJobIndex(command, sched), ec)
}
