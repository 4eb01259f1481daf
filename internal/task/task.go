// Package task drives a pipeline's stages in order through a state machine and
// aggregates their results.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

const (
	exitValueInterrupted = 1
	exitValueInvalid     = 2
	exitValueUnexpected  = 1
)

var (
	// ErrAborted is returned when executing a task that was aborted.
	ErrAborted = errors.New("this task has been aborted, so will not execute")
	// ErrNotSubmitted is returned when executing a task that was never submitted.
	ErrNotSubmitted = errors.New("task does not appear to have ever been submitted")
)

// StageRunner executes one stage with its parameter values through ec.
type StageRunner interface {
	RunStage(ctx context.Context, p process.Process, params map[string]string, ec *execution.Context) (*model.ExecutionResult, error)
}

// Option configures a Task.
type Option func(*Task)

// WithLogger injects the logger.
func WithLogger(log *logger.Logger) Option {
	return func(t *Task) { t.log = log }
}

// WithID overrides the generated id.
func WithID(id string) Option {
	return func(t *Task) {
		if id != "" {
			t.id = id
		}
	}
}

// WithSubmitter records who submitted the task.
func WithSubmitter(submitter string) Option {
	return func(t *Task) {
		if submitter != "" {
			t.submitter = submitter
		}
	}
}

// WithFirstStage starts execution at stage index instead of the first stage.
func WithFirstStage(index int) Option {
	return func(t *Task) {
		t.firstIndex = index
		t.currentIndex = index
	}
}

// WithListener registers a listener at construction.
func WithListener(l Listener) Option {
	return func(t *Task) { t.addListener(l) }
}

type registered struct {
	id       int
	listener Listener
}

// Task is one execution of a pipeline with a fixed set of parameter values.
// Its methods are safe for concurrent use; listeners run without the task lock held.
type Task struct {
	mu sync.Mutex

	id        string
	pipeline  *Pipeline
	params    map[string]string
	runner    StageRunner
	log       *logger.Logger
	submitter string

	firstIndex   int
	currentIndex int

	created   time.Time
	submitted time.Time
	started   time.Time
	completed time.Time

	runs        []ProcessRun
	state       State
	status      string
	isSubmitted bool
	paused      bool

	listeners      []registered
	nextListenerID int
}

// New creates a task in the CREATED state.
func New(pipeline *Pipeline, params map[string]string, runner StageRunner, opts ...Option) (*Task, error) {
	if pipeline == nil {
		return nil, batcherrors.NewValidationError("pipeline", "pipeline is required", nil)
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, batcherrors.NewValidationError("runner", "a stage runner is required", nil)
	}

	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}

	t := &Task{
		id:        uuid.NewString(),
		pipeline:  pipeline,
		params:    cp,
		runner:    runner,
		submitter: defaultSubmitter(),
		created:   time.Now(),
		state:     StateCreated,
		status:    "Task created",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.firstIndex < 0 || t.firstIndex > len(pipeline.Stages) {
		return nil, batcherrors.NewValidationError("first_stage", fmt.Sprintf("stage index %d out of range", t.firstIndex), nil)
	}
	t.log = t.log.Component("task").WithFields(map[string]any{"task_id": t.id, "pipeline": pipeline.Name})
	return t, nil
}

func defaultSubmitter() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return batcherrors.UnknownHost
}

func (t *Task) ID() string { return t.id }

func (t *Task) Name() string { return t.pipeline.Name }

func (t *Task) Pipeline() *Pipeline { return t.pipeline }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StatusMessage is a human readable summary such as "Doing 'align'".
func (t *Task) StatusMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) CreationDate() time.Time { return t.timestamp(&t.created) }

func (t *Task) SubmissionDate() time.Time { return t.timestamp(&t.submitted) }

func (t *Task) StartDate() time.Time { return t.timestamp(&t.started) }

func (t *Task) CompletionDate() time.Time { return t.timestamp(&t.completed) }

func (t *Task) timestamp(ts *time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *ts
}

// CurrentIndex is the position of the next stage to execute.
func (t *Task) CurrentIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentIndex
}

// AddListener registers l and returns a function that removes it.
func (t *Task) AddListener(l Listener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.addListener(l)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, r := range t.listeners {
			if r.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

func (t *Task) addListener(l Listener) int {
	t.nextListenerID++
	t.listeners = append(t.listeners, registered{id: t.nextListenerID, listener: l})
	return t.nextListenerID
}

// FirstProcess is the stage the task was created to start from.
func (t *Task) FirstProcess() process.Process {
	return t.pipeline.stage(t.firstIndex)
}

// LastProcess is the most recently attempted stage.
func (t *Task) LastProcess() process.Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastProcess()
}

func (t *Task) lastProcess() process.Process {
	if t.currentIndex > t.firstIndex {
		return t.pipeline.stage(t.currentIndex - 1)
	}
	return nil
}

// CurrentProcess is the stage executing now, or nil when the task is not running.
func (t *Task) CurrentProcess() process.Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentProcess()
}

func (t *Task) currentProcess() process.Process {
	if t.state != StateRunning {
		return nil
	}
	return t.pipeline.stage(t.currentIndex)
}

// NextProcess is the stage after the running one, or the stage a stopped task would run next.
func (t *Task) NextProcess() process.Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextProcess()
}

func (t *Task) nextProcess() process.Process {
	if t.state == StateRunning {
		return t.pipeline.stage(t.currentIndex + 1)
	}
	return t.pipeline.stage(t.currentIndex)
}

// ProcessRuns returns every attempt in execution order.
func (t *Task) ProcessRuns() []ProcessRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ProcessRun(nil), t.runs...)
}

// ProcessRunsFor returns the attempts at the stage named name.
func (t *Task) ProcessRunsFor(name string) ([]ProcessRun, error) {
	if !t.pipeline.Contains(name) {
		return nil, batcherrors.NewValidationError("process", fmt.Sprintf("the process %q is not part of the pipeline for task %q", name, t.id), nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var runs []ProcessRun
	for _, run := range t.runs {
		if run.ProcessName == name {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

// Submit moves a new task to SUBMITTED. Resubmitting does nothing.
func (t *Task) Submit() {
	t.mu.Lock()
	if t.isSubmitted {
		t.mu.Unlock()
		return
	}
	t.isSubmitted = true
	t.submitted = time.Now()
	t.state = StateSubmitted
	t.status = "Submitted"
	ev := t.event(EventStateChanged, t.FirstProcessName(), nil, nil)
	t.mu.Unlock()

	t.log.Debug("task submitted")
	t.notify(ev)
}

// FirstProcessName is the name of FirstProcess, or "".
func (t *Task) FirstProcessName() string {
	if p := t.FirstProcess(); p != nil {
		return p.Name()
	}
	return ""
}

func (t *Task) IsSubmitted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isSubmitted
}

// Pause stops execution before the next stage starts.
func (t *Task) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
	t.log.Debug("pausing task")
}

func (t *Task) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Resume clears the pause flag; the next Execute continues at the current stage.
func (t *Task) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
	t.log.Debug("resuming task, no longer paused")
}

// RetryLastProcess rewinds the stage pointer by one and clears the pause flag.
func (t *Task) RetryLastProcess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentIndex > t.firstIndex {
		t.currentIndex--
	}
	t.paused = false
	t.log.Debug("retrying last process, no longer paused")
}

// Restart is not supported; tasks resume or retry instead.
func (t *Task) Restart() error {
	return batcherrors.NewUnsupportedError("restart", "tasks cannot currently be completely restarted")
}

// Abort moves the task to the terminal ABORTED state.
func (t *Task) Abort() {
	t.mu.Lock()
	ev := t.abortLocked(nil)
	t.mu.Unlock()
	t.notify(ev)
}

func (t *Task) abortLocked(cause error) Event {
	t.state = StateAborted
	if last := t.lastProcess(); last != nil {
		t.status = fmt.Sprintf("Aborted after '%s'", last.Name())
	} else {
		t.status = "Aborted before the first process started"
	}
	t.completed = time.Now()
	return t.event(EventStateChanged, "", t.lastRun(), cause)
}

// Execute runs stages from the current index until the pipeline ends, the task is
// paused, a stage fails or ctx is cancelled. It returns the results gathered so
// far together with any failure.
func (t *Task) Execute(ctx context.Context, ec *execution.Context) (*model.TaskResult, error) {
	if ec == nil {
		ec = execution.NewLocal()
	}
	if err := t.checkState(); err != nil {
		return nil, err
	}

	start := time.Now()
	t.log.Infof("executing task %q", t.id)
	defer func() {
		t.mu.Lock()
		if t.state == StateCompleted || t.state == StateAborted {
			t.listeners = nil
		}
		t.mu.Unlock()
		t.log.Infof("task %q execution ended, runtime %s", t.id, time.Since(start).Round(time.Millisecond))
	}()

	var (
		results []*model.ExecutionResult
		failed  error
	)
	finish := func(success bool) *model.TaskResult {
		return model.NewTaskResult(t.pipeline.Name, success, results, time.Since(start))
	}

	for {
		t.mu.Lock()
		if t.paused || t.currentIndex >= len(t.pipeline.Stages) {
			t.mu.Unlock()
			break
		}
		if err := ctx.Err(); err != nil {
			ev := t.cancelledLocked(err)
			t.mu.Unlock()
			t.notify(ev)
			return finish(false), err
		}
		index := t.currentIndex
		p := t.pipeline.Stages[index]
		ev := t.processStartedLocked(p)
		t.mu.Unlock()
		t.notify(ev)

		params := process.Select(p, t.params)
		t.log.Debugf("process %q being executed, supplying parameters: %v", p.Name(), params)

		stageContext := t.stageContext(ec, index, p)
		stageStart := time.Now()
		result, err := t.runner.RunStage(ctx, p, params, stageContext)
		if result != nil {
			results = append(results, result)
			if err == nil && result.ExitCode != 0 {
				err = batcherrors.NewProcessExecutionError(result.ExitCode, result.FirstOutputLine(), nil).WithOutput(result.Output)
			}
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				t.log.Error(err, fmt.Sprintf("executing process %q was interrupted", p.Name()))
				t.interrupt(p, ctxErr)
				return finish(false), ctxErr
			}

			abort := t.fail(p, err)
			if abort {
				return finish(false), err
			}
			if !t.pipeline.ContinueOnError {
				return finish(false), err
			}
			failed = multierror.Append(failed, fmt.Errorf("stage %q: %w", p.Name(), err))
			continue
		}

		t.ended(p)
		t.log.Debugf("process %q runtime: %s", p.Name(), time.Since(stageStart).Round(time.Millisecond))
	}

	t.mu.Lock()
	var ev Event
	success := false
	switch {
	case t.paused:
		t.state = StatePaused
		if next := t.nextProcess(); next != nil {
			t.status = fmt.Sprintf("Paused before '%s'", next.Name())
		} else {
			t.status = "Paused during the last process"
		}
		ev = t.event(EventStateChanged, "", t.lastRun(), nil)
	case failed != nil:
		t.state = StateFailed
		t.status = "Completed with failures"
		t.completed = time.Now()
		ev = t.event(EventStateChanged, "", t.lastRun(), failed)
	default:
		t.state = StateCompleted
		t.status = "Complete"
		t.completed = time.Now()
		success = true
		ev = t.event(EventStateChanged, "", nil, nil)
	}
	t.mu.Unlock()
	t.notify(ev)

	return finish(success), failed
}

func (t *Task) checkState() error {
	t.mu.Lock()
	var ev Event
	switch {
	case t.state == StateAborted:
		t.mu.Unlock()
		return ErrAborted
	case t.state < StateSubmitted:
		t.mu.Unlock()
		return ErrNotSubmitted
	case t.state == StateRunning:
		t.state = StateRecovered
		t.status = "Recovered"
		name := ""
		if next := t.pipeline.stage(t.currentIndex); next != nil {
			name = next.Name()
		}
		ev = t.event(EventStateChanged, name, t.lastRun(), nil)
		t.log.Info("task recovered after an interrupted run")
	default:
		if t.state == StateSubmitted {
			t.status = "Started"
			t.started = time.Now()
		} else {
			t.status = "Restarted"
		}
		t.state = StateRunning
		ev = t.event(EventStateChanged, t.FirstProcessName(), nil, nil)
	}
	t.mu.Unlock()
	t.notify(ev)
	return nil
}

// stageContext copies ec and gives scheduled stages a job name and monitor file
// when none were configured.
func (t *Task) stageContext(ec *execution.Context, index int, p process.Process) *execution.Context {
	stageContext := ec.Copy()
	if stageContext.UsingScheduler() && stageContext.MonitorFile() == "" {
		jobName := fmt.Sprintf("%s_%d_%s", t.pipeline.Name, index, p.Name())
		if stageContext.JobName() == "" {
			stageContext.SetJobName(jobName)
		}
		stageContext.SetMonitorFile(filepath.Join(t.pipeline.OutputDir, jobName+".log"))
	}
	return stageContext
}

func (t *Task) processStartedLocked(p process.Process) Event {
	t.state = StateRunning
	t.runs = append(t.runs, ProcessRun{
		ProcessName: p.Name(),
		Submitter:   t.submitter,
		Start:       time.Now(),
	})
	t.status = fmt.Sprintf("Doing '%s'", p.Name())
	t.log.Debugf("commencing process %q (execution index = %d)", p.Name(), t.currentIndex)
	return t.event(EventProcessStarted, p.Name(), t.lastRun(), nil)
}

func (t *Task) ended(p process.Process) {
	t.mu.Lock()
	t.status = fmt.Sprintf("Finished '%s'", p.Name())
	t.currentIndex++
	run := &t.runs[len(t.runs)-1]
	run.End = time.Now()
	run.ExitValue = 0
	run.ErrorMessage = ""
	ev := t.event(EventProcessEnded, p.Name(), t.lastRun(), nil)
	t.mu.Unlock()
	t.notify(ev)
}

// fail records a failed attempt and reports whether it aborted the task.
func (t *Task) fail(p process.Process, err error) bool {
	exitValue := exitValueUnexpected
	message := err.Error()
	abort := false

	var (
		validationErr *batcherrors.ValidationError
		pex           *batcherrors.ProcessExecutionError
	)
	switch {
	case errors.As(err, &validationErr):
		exitValue = exitValueInvalid
		t.log.Error(err, fmt.Sprintf("process %q did not start due to invalid parameters", p.Name()))
	case errors.As(err, &pex):
		exitValue = pex.ExitCode
		abort = pex.Abort
		t.log.WithFields(map[string]any{"exit_code": pex.ExitCode, "host": pex.Host, "abort": pex.Abort}).
			Error(err, fmt.Sprintf("process %q failed to execute, output follows...\n%s", p.Name(), pex.OutputText()))
	default:
		t.log.Error(err, fmt.Sprintf("process %q failed to execute", p.Name()))
	}

	t.mu.Lock()
	t.status = fmt.Sprintf("Failed at '%s'", p.Name())
	t.state = StateFailed
	t.currentIndex++
	run := &t.runs[len(t.runs)-1]
	run.End = time.Now()
	run.ExitValue = exitValue
	run.ErrorMessage = message
	events := []Event{t.event(EventProcessFailed, p.Name(), t.lastRun(), err)}
	if abort {
		events = append(events, t.abortLocked(err))
	}
	t.mu.Unlock()

	for _, ev := range events {
		t.notify(ev)
	}
	return abort
}

func (t *Task) interrupt(p process.Process, cause error) {
	t.mu.Lock()
	t.status = fmt.Sprintf("Killed at '%s'", p.Name())
	t.state = StateFailed
	t.currentIndex++
	run := &t.runs[len(t.runs)-1]
	run.End = time.Now()
	run.ExitValue = exitValueInterrupted
	run.Interrupted = true
	ev := t.event(EventProcessFailed, p.Name(), t.lastRun(), cause)
	t.mu.Unlock()
	t.notify(ev)
}

func (t *Task) cancelledLocked(cause error) Event {
	t.state = StateFailed
	if next := t.pipeline.stage(t.currentIndex); next != nil {
		t.status = fmt.Sprintf("Killed before '%s'", next.Name())
	} else {
		t.status = "Killed"
	}
	return t.event(EventStateChanged, "", t.lastRun(), cause)
}

func (t *Task) lastRun() *ProcessRun {
	if len(t.runs) == 0 {
		return nil
	}
	run := t.runs[len(t.runs)-1]
	return &run
}

func (t *Task) event(kind EventKind, processName string, run *ProcessRun, err error) Event {
	return Event{
		Kind:          kind,
		Task:          t,
		TaskID:        t.id,
		TaskName:      t.pipeline.Name,
		State:         t.state,
		StatusMessage: t.status,
		Process:       processName,
		Index:         t.currentIndex,
		Run:           run,
		Err:           err,
		Time:          time.Now(),
	}
}

func (t *Task) notify(ev Event) {
	t.mu.Lock()
	listeners := append([]registered(nil), t.listeners...)
	t.mu.Unlock()
	for _, r := range listeners {
		dispatch(r.listener, ev)
	}
}
