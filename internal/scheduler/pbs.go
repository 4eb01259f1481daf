package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
)

const (
	pbsSubmit = "qsub"
	pbsArgSep = ":"

	// tracejob lines carry a fixed width timestamp and record type before the message.
	pbsTraceMessageOffset = 26
	pbsTraceAttempts      = 4
	pbsMinTraceLines      = 5
)

// DefaultTraceDelay separates tracejob polls while the accounting record is incomplete.
const DefaultTraceDelay = 5 * time.Second

// PBS submits through a blocking qsub and reads accounting from tracejob.
type PBS struct {
	base
	traceDelay time.Duration
}

// NewPBS creates a PBS scheduler.
func NewPBS(opts ...Option) *PBS {
	return &PBS{base: newBase(string(TypePBS), pbsSubmit, opts), traceDelay: DefaultTraceDelay}
}

// SetTraceDelay changes the pause between tracejob polls.
func (s *PBS) SetTraceDelay(d time.Duration) {
	s.traceDelay = d
}

func (s *PBS) Name() string { return string(TypePBS) }

func (s *PBS) argString(foreground bool) string {
	a := s.args
	f := flags{"-V"}

	f.add("-q", a.QueueName)
	f.add("-N", a.JobName)

	var resources []string
	if a.Threads > 1 {
		resources = append(resources, "ncpus="+strconv.Itoa(a.Threads))
	}
	if a.MemoryMB > 0 {
		resources = append(resources, fmt.Sprintf("mem=%dmb", a.MemoryMB))
	}
	if len(resources) > 0 {
		f.add("-l", "select=1:"+strings.Join(resources, ":"))
	}
	f.addIf(a.EstimatedRuntimeMins > 0, "-l", "walltime="+walltime(a.EstimatedRuntimeMins))
	if a.MonitorFile != "" {
		f.add("-j", "oe", "-o", a.MonitorFile)
	}
	if ja := a.JobArray; ja != nil {
		spec := fmt.Sprintf("%d-%d:%d", ja.MinIndex, ja.MaxIndex, ja.step())
		if ja.MaxSimultaneousJobs > 0 {
			spec += fmt.Sprintf("%%%d", ja.MaxSimultaneousJobs)
		}
		f.add("-J", spec)
	}
	f.add(strings.TrimSpace(a.ExtraArgs))

	var w []string
	if foreground {
		w = append(w, "block=true")
	}
	if a.WaitCondition != "" {
		w = append(w, a.WaitCondition)
	}
	if len(w) > 0 {
		f.add("-W", strings.Join(w, ","))
	}
	return f.String()
}

func walltime(mins int) string {
	return fmt.Sprintf("%02d:%02d:00", mins/60, mins%60)
}

// CreateCommand pipes the command into qsub; foreground jobs block until the job ends.
func (s *PBS) CreateCommand(cmd string, foreground bool) string {
	return fmt.Sprintf("echo %s | %s %s", quote(cmd), s.submit, s.argString(foreground))
}

func (s *PBS) CreateWaitCommand(cond string) string {
	f := flags{"echo", quote("sleep 1 2>&1"), "|", s.submit}
	f.add("-W", "block=true,"+cond)
	f.add("-q", s.args.QueueName)
	if s.args.MonitorFile != "" {
		f.add("-j", "oe", "-o", s.args.MonitorFile)
	}
	f.add("-l", "walltime=1")
	return f.String()
}

func (s *PBS) CreateKillCommand(jobID string) string {
	return "qdel " + jobID
}

func (s *PBS) CreateWaitCondition(status ExitStatus, condition string) string {
	return "depend=" + status.dependCondition() + pbsArgSep + condition
}

func (s *PBS) CreateWaitConditionForJobs(status ExitStatus, jobIDs []int) string {
	return s.CreateWaitCondition(status, joinInts(jobIDs, pbsArgSep))
}

// ExtractJobIDFromOutput parses "<id>.<server>", including array ids such as "4176[].server".
func (s *PBS) ExtractJobIDFromOutput(line string) (int, error) {
	parts := strings.Split(strings.TrimSpace(line), ".")
	if len(parts) < 2 {
		return model.UnknownJobID, fmt.Errorf("could not extract PBS job id from: %s", line)
	}
	head, _, _ := strings.Cut(parts[0], "[")
	id, err := strconv.Atoi(head)
	if err != nil {
		return model.UnknownJobID, fmt.Errorf("could not extract PBS job id from: %s: %w", line, err)
	}
	return id, nil
}

func (s *PBS) GeneratesJobIDFromOutput() bool { return true }

func (s *PBS) GeneratesJobIDFromError() bool { return false }

func (s *PBS) UsesFileMonitor() bool { return false }

func (s *PBS) CreateProcessAdapter(int) *monitor.Adapter { return nil }

func (s *PBS) ResourceUsageFromMonitorFile(string) (*model.ResourceUsage, error) {
	return nil, nil
}

var errTraceIncomplete = errors.New("tracejob output has no resource usage yet")

// ResourceUsageFromID polls tracejob until the accounting record appears. It gives
// up after a bounded number of attempts, when the output stops growing, or when
// tracejob knows nothing about the job.
func (s *PBS) ResourceUsageFromID(ctx context.Context, id int) (*model.ResourceUsage, error) {
	command := fmt.Sprintf("tracejob %d", id)
	lastCount := 0
	var output []string

	err := retry.Do(
		func() error {
			res, err := s.runner.Run(ctx, command)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			output = res.Combined

			count := traceProgress(output)
			switch {
			case count == 0:
				return nil
			case count < 0:
				return retry.Unrecoverable(fmt.Errorf("could not find any content from PBS tracejob for job %d", id))
			case count < lastCount:
				return retry.Unrecoverable(fmt.Errorf("no progress from PBS tracejob for job %d", id))
			}
			lastCount = count
			s.log.Debugf("tracejob for job %d incomplete, retrying in %s", id, s.traceDelay)
			return errTraceIncomplete
		},
		retry.Context(ctx),
		retry.Attempts(pbsTraceAttempts),
		retry.Delay(s.traceDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return parseTraceJob(output)
}

// traceProgress is 0 when usage is present, the line count when more output is
// expected, and -1 when tracejob returned too little to ever succeed.
func traceProgress(lines []string) int {
	for _, line := range lines {
		if len(line) > pbsTraceMessageOffset+1 && strings.Contains(line, "resources_used") {
			return 0
		}
	}
	if len(lines) > pbsMinTraceLines {
		return len(lines)
	}
	return -1
}

func parseTraceJob(lines []string) (*model.ResourceUsage, error) {
	usage := &model.ResourceUsage{}
	for _, line := range lines {
		if len(line) <= pbsTraceMessageOffset+1 || !strings.Contains(line, "resources_used") {
			continue
		}
		for _, token := range strings.Fields(line[pbsTraceMessageOffset:]) {
			data, ok := strings.CutPrefix(token, "resources_used.")
			if !ok {
				continue
			}
			key, value, ok := strings.Cut(data, "=")
			if !ok {
				continue
			}

			switch strings.ToLower(key) {
			case "cput":
				secs, err := clockToSeconds(value)
				if err != nil {
					return nil, err
				}
				usage.CPUTimeSeconds = secs
			case "mem":
				kb, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(value), "kb"))
				if err != nil {
					return nil, fmt.Errorf("parse PBS memory %q: %w", value, err)
				}
				usage.MaxMemMB = kb / 1000
			case "walltime":
				secs, err := clockToSeconds(value)
				if err != nil {
					return nil, err
				}
				usage.RunTimeSeconds = secs
			}
		}
	}
	return usage, nil
}

func (s *PBS) JobIndexString() string { return "${PBS_ARRAY_INDEX}" }

func (s *PBS) Copy() Scheduler {
	return &PBS{base: s.copyBase(), traceDelay: s.traceDelay}
}
