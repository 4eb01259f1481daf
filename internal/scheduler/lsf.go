package scheduler

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
	"github.com/alexisbeaulieu97/batchrun/internal/shell"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

const (
	lsfSubmit        = "bsub"
	lsfArrayFileMark = "%I"
	lsfDefaultName   = "batchrun"
)

var (
	lsfJobIDPattern = regexp.MustCompile(`Job <(\d+)>`)
	lsfExitPattern  = regexp.MustCompile(`Exited with exit code (\d+)`)
	lsfHostPattern  = regexp.MustCompile(`executed on host\(s\) <(?:\d+\*)?([^>]+)>`)
)

// LSF submits through bsub and detects completion from the -oo job report.
type LSF struct {
	base
}

// NewLSF creates an LSF scheduler.
func NewLSF(opts ...Option) *LSF {
	return &LSF{base: newBase(string(TypeLSF), lsfSubmit, opts)}
}

func (s *LSF) Name() string { return string(TypeLSF) }

func (s *LSF) argString() string {
	a := s.args
	var f flags

	if a.JobArray != nil {
		name := a.JobName
		if name == "" {
			name = lsfDefaultName
		}
		ja := a.JobArray
		spec := fmt.Sprintf("%s[%d-%d:%d]", name, ja.MinIndex, ja.MaxIndex, ja.step())
		if ja.MaxSimultaneousJobs > 0 {
			spec += fmt.Sprintf("%%%d", ja.MaxSimultaneousJobs)
		}
		f.add("-J", quote(spec))
	} else {
		f.add("-J", a.JobName)
	}
	f.add("-q", a.QueueName)
	f.add("-oo", s.monitorArg())
	f.addIf(a.Threads > 1, "-n", strconv.Itoa(a.Threads))
	f.addIf(a.Threads > 1 && !a.OpenMPI, "-R", quote("span[hosts=1]"))
	f.addIf(a.MemoryMB > 0, "-R", quote(fmt.Sprintf("rusage[mem=%d]", a.MemoryMB)))
	f.addIf(a.EstimatedRuntimeMins > 0, "-W", strconv.Itoa(a.EstimatedRuntimeMins))
	f.add("-w", quoteIfSet(a.WaitCondition))
	f.add(strings.TrimSpace(a.ExtraArgs))
	return f.String()
}

func (s *LSF) monitorArg() string {
	if s.args.MonitorFile == "" {
		return ""
	}
	if s.isArray() {
		return s.args.MonitorFile + "." + lsfArrayFileMark
	}
	return s.args.MonitorFile
}

// CreateCommand renders bsub [flags] "<cmd>". LSF returns as soon as the job is
// queued in both modes; foreground callers wait on the monitor file.
func (s *LSF) CreateCommand(cmd string, foreground bool) string {
	f := flags{s.submit}
	f.add(s.argString())
	f.add(quote(cmd))
	return f.String()
}

func (s *LSF) CreateWaitCommand(cond string) string {
	f := flags{s.submit}
	f.add("-w", quote(cond))
	f.add("-q", s.args.QueueName)
	f.add("-oo", s.args.MonitorFile)
	f.add(quote("sleep 1 2>&1"))
	return f.String()
}

func (s *LSF) CreateKillCommand(jobID string) string {
	return "bkill " + jobID
}

func (s *LSF) CreateWaitCondition(status ExitStatus, condition string) string {
	return status.lsfCondition() + "(" + condition + ")"
}

func (s *LSF) CreateWaitConditionForJobs(status ExitStatus, jobIDs []int) string {
	parts := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		parts[i] = s.CreateWaitCondition(status, strconv.Itoa(id))
	}
	return strings.Join(parts, " && ")
}

// ExtractJobIDFromOutput parses "Job <N> is submitted to ...".
func (s *LSF) ExtractJobIDFromOutput(line string) (int, error) {
	m := lsfJobIDPattern.FindStringSubmatch(line)
	if m == nil {
		return model.UnknownJobID, fmt.Errorf("could not extract LSF job id from: %s", line)
	}
	return strconv.Atoi(m[1])
}

func (s *LSF) GeneratesJobIDFromOutput() bool { return true }

func (s *LSF) GeneratesJobIDFromError() bool { return false }

func (s *LSF) UsesFileMonitor() bool { return true }

func (s *LSF) CreateProcessAdapter(index int) *monitor.Adapter {
	file := s.args.MonitorFile
	if index >= 0 && s.isArray() {
		file = fmt.Sprintf("%s.%d", file, index)
	}
	return monitor.NewAdapter(file, s.args.MonitorInterval, DetectLSFCompletion)
}

// DetectLSFCompletion recognises the terminal lines of an LSF job report.
func DetectLSFCompletion(lines []string) (monitor.Completion, bool) {
	completion := monitor.Completion{ExitCode: -1}
	finished := false
	for _, line := range lines {
		if m := lsfHostPattern.FindStringSubmatch(line); m != nil {
			completion.Host = m[1]
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Successfully completed."):
			completion.ExitCode = 0
			finished = true
		case strings.HasPrefix(trimmed, "Exited with exit code"):
			if m := lsfExitPattern.FindStringSubmatch(trimmed); m != nil {
				completion.ExitCode, _ = strconv.Atoi(m[1])
			} else {
				completion.ExitCode = 1
			}
			finished = true
		case strings.HasPrefix(trimmed, "Exited with signal termination"), strings.HasPrefix(trimmed, "Exited."):
			completion.ExitCode = 1
			finished = true
		}
	}
	return completion, finished
}

// ResourceUsageFromMonitorFile reads the "Resource usage summary" block of a job report.
func (s *LSF) ResourceUsageFromMonitorFile(path string) (*model.ResourceUsage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read LSF report %s: %w", path, err)
	}
	return parseLSFReport(shell.SplitLines(string(data)))
}

func parseLSFReport(lines []string) (*model.ResourceUsage, error) {
	usage := &model.ResourceUsage{}
	found := false
	for _, line := range lines {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}

		switch key {
		case "CPU time":
			cpu, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("parse LSF CPU time %q: %w", value, err)
			}
			usage.CPUTimeSeconds = int64(cpu)
			found = true
		case "Max Memory":
			if mem, err := strconv.ParseFloat(fields[0], 64); err == nil {
				usage.MaxMemMB = memoryToMB(mem, unitOf(fields))
			}
			found = true
		case "Run time":
			if run, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
				usage.RunTimeSeconds = run
			}
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no resource usage summary in LSF report")
	}
	return usage, nil
}

func unitOf(fields []string) string {
	if len(fields) > 1 {
		return fields[1]
	}
	return "MB"
}

func memoryToMB(value float64, unit string) int {
	switch strings.TrimSuffix(strings.ToUpper(unit), "B") {
	case "K":
		return int(value / 1000)
	case "G":
		return int(value * 1000)
	case "T":
		return int(value * 1000 * 1000)
	case "":
		return int(value / 1000 / 1000)
	default:
		return int(value)
	}
}

// ResourceUsageFromID is unsupported for LSF; its accounting comes from the job report.
func (s *LSF) ResourceUsageFromID(_ context.Context, _ int) (*model.ResourceUsage, error) {
	return nil, batcherrors.NewUnsupportedError("resource usage by id", "LSF reports usage in the monitor file")
}

func (s *LSF) JobIndexString() string { return "$LSB_JOBINDEX" }

func (s *LSF) Copy() Scheduler {
	return &LSF{base: s.copyBase()}
}

func quoteIfSet(s string) string {
	if s == "" {
		return ""
	}
	return quote(s)
}
