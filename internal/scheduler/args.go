package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// JobArrayArgs bounds a job array: indices MinIndex..MaxIndex stepping by StepIndex,
// with at most MaxSimultaneousJobs running at once (0 means unlimited).
type JobArrayArgs struct {
	MinIndex            int `json:"min_index" yaml:"min_index"`
	MaxIndex            int `json:"max_index" yaml:"max_index"`
	StepIndex           int `json:"step_index" yaml:"step_index"`
	MaxSimultaneousJobs int `json:"max_simultaneous_jobs" yaml:"max_simultaneous_jobs"`
}

// NewJobArrayArgs builds array bounds with a step of one and no concurrency cap.
func NewJobArrayArgs(minIndex, maxIndex int) *JobArrayArgs {
	return &JobArrayArgs{MinIndex: minIndex, MaxIndex: maxIndex, StepIndex: 1}
}

func (j *JobArrayArgs) step() int {
	if j.StepIndex < 1 {
		return 1
	}
	return j.StepIndex
}

// Indices lists every array index in submission order.
func (j *JobArrayArgs) Indices() []int {
	if j == nil || j.MaxIndex < j.MinIndex {
		return nil
	}
	indices := make([]int, 0, j.Size())
	for i := j.MinIndex; i <= j.MaxIndex; i += j.step() {
		indices = append(indices, i)
	}
	return indices
}

// Size is the number of indices in the array.
func (j *JobArrayArgs) Size() int {
	if j == nil || j.MaxIndex < j.MinIndex {
		return 0
	}
	return (j.MaxIndex-j.MinIndex)/j.step() + 1
}

// Validate rejects bounds no scheduler would accept.
func (j *JobArrayArgs) Validate() error {
	switch {
	case j.MinIndex < 0:
		return fmt.Errorf("job array min index must be >= 0, got %d", j.MinIndex)
	case j.MaxIndex < j.MinIndex:
		return fmt.Errorf("job array max index %d is below min index %d", j.MaxIndex, j.MinIndex)
	case j.StepIndex < 0:
		return fmt.Errorf("job array step must be positive, got %d", j.StepIndex)
	case j.MaxSimultaneousJobs < 0:
		return fmt.Errorf("job array max simultaneous jobs must be >= 0, got %d", j.MaxSimultaneousJobs)
	}
	return nil
}

// Copy returns an independent value.
func (j *JobArrayArgs) Copy() *JobArrayArgs {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Args are the scheduler-neutral submission settings for one job.
type Args struct {
	QueueName            string
	JobName              string
	Threads              int
	MemoryMB             int
	EstimatedRuntimeMins int
	// MonitorFile receives scheduler output; for file monitoring schedulers it is also
	// the completion signal.
	MonitorFile     string
	MonitorInterval time.Duration
	WaitCondition   string
	JobArray        *JobArrayArgs
	// ExtraArgs are appended verbatim to the native submission flags.
	ExtraArgs string
	// OpenMPI allows threads to span hosts.
	OpenMPI bool
}

// NewArgs returns defaults: one thread, no limits.
func NewArgs() *Args {
	return &Args{Threads: 1}
}

// Copy returns an independent value; the job array bounds are duplicated too.
func (a *Args) Copy() *Args {
	if a == nil {
		return nil
	}
	c := *a
	c.JobArray = a.JobArray.Copy()
	return &c
}

// flags accumulates command line fragments, skipping empty ones.
type flags []string

func (f *flags) add(parts ...string) {
	for _, p := range parts {
		if p == "" {
			return
		}
	}
	*f = append(*f, parts...)
}

func (f *flags) addIf(cond bool, parts ...string) {
	if cond {
		f.add(parts...)
	}
}

func (f flags) String() string {
	return strings.Join(f, " ")
}

func joinInts(ids []int, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, sep)
}
