package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
)

// OGE targets Open Grid Engine and its Sun Grid Engine relatives.
type OGE struct {
	base
}

// NewOGE creates an OGE scheduler.
func NewOGE(opts ...Option) *OGE {
	return &OGE{base: newBase(string(TypeOGE), "qsub", opts)}
}

func (s *OGE) Name() string { return string(TypeOGE) }

func (s *OGE) argString() string {
	a := s.args
	var f flags

	f.add("-q", a.QueueName)
	f.add("-N", a.JobName)
	f.addIf(a.Threads > 1, "-pe", "smp", strconv.Itoa(a.Threads))
	f.addIf(a.MemoryMB > 0, "-l", fmt.Sprintf("h_vmem=%dM", a.MemoryMB))
	f.addIf(a.EstimatedRuntimeMins > 0, "-l", fmt.Sprintf("h_rt=%d", a.EstimatedRuntimeMins*60))
	f.add("-hold_jid", a.WaitCondition)
	if ja := a.JobArray; ja != nil {
		f.add("-t", fmt.Sprintf("%d-%d:%d", ja.MinIndex, ja.MaxIndex, ja.step()))
		f.addIf(ja.MaxSimultaneousJobs > 0, "-tc", strconv.Itoa(ja.MaxSimultaneousJobs))
	}
	if a.MonitorFile != "" {
		f.add("-j", "y", "-o", a.MonitorFile)
	}
	f.add(strings.TrimSpace(a.ExtraArgs))
	return f.String()
}

// CreateCommand renders a binary qsub submission; foreground jobs use -sync y.
func (s *OGE) CreateCommand(cmd string, foreground bool) string {
	f := flags{s.submit}
	f.addIf(foreground, "-sync", "y")
	f.add("-b", "y", "-cwd", "-V")
	f.add(s.argString())
	f.add(quote(cmd))
	return f.String()
}

func (s *OGE) CreateWaitCommand(cond string) string {
	f := flags{s.submit, "-sync", "y", "-b", "y", "-hold_jid", cond}
	f.add("-q", s.args.QueueName)
	if s.args.MonitorFile != "" {
		f.add("-j", "y", "-o", s.args.MonitorFile)
	}
	f.add(quote("sleep 1 2>&1"))
	return f.String()
}

func (s *OGE) CreateKillCommand(jobID string) string {
	return "qdel " + jobID
}

// CreateWaitCondition returns the hold list unchanged; grid engine holds only
// release on completion and ignore the requested exit status.
func (s *OGE) CreateWaitCondition(_ ExitStatus, condition string) string {
	return condition
}

func (s *OGE) CreateWaitConditionForJobs(status ExitStatus, jobIDs []int) string {
	return s.CreateWaitCondition(status, joinInts(jobIDs, ","))
}

// ExtractJobIDFromOutput parses "Your job 123 (...) has been submitted" and the
// job-array form "Your job-array 123.1-5:1 (...)".
func (s *OGE) ExtractJobIDFromOutput(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "Your" || !strings.HasPrefix(fields[1], "job") {
		return model.UnknownJobID, fmt.Errorf("could not extract OGE job id from: %s", line)
	}
	head, _, _ := strings.Cut(fields[2], ".")
	id, err := strconv.Atoi(head)
	if err != nil {
		return model.UnknownJobID, fmt.Errorf("could not extract OGE job id from: %s: %w", line, err)
	}
	return id, nil
}

func (s *OGE) GeneratesJobIDFromOutput() bool { return true }

func (s *OGE) GeneratesJobIDFromError() bool { return false }

func (s *OGE) UsesFileMonitor() bool { return false }

func (s *OGE) CreateProcessAdapter(int) *monitor.Adapter { return nil }

func (s *OGE) ResourceUsageFromMonitorFile(string) (*model.ResourceUsage, error) {
	return nil, nil
}

// ResourceUsageFromID reads ru_wallclock, cpu and maxvmem from qacct.
func (s *OGE) ResourceUsageFromID(ctx context.Context, id int) (*model.ResourceUsage, error) {
	res, err := s.runner.Run(ctx, fmt.Sprintf("qacct -j %d", id))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("qacct exited with code %d for job %d", res.ExitCode, id)
	}
	return parseQacct(res.Stdout)
}

func parseQacct(lines []string) (*model.ResourceUsage, error) {
	usage := &model.ResourceUsage{}
	found := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value := fields[1]
		switch fields[0] {
		case "ru_wallclock":
			secs, err := parseSeconds(value)
			if err != nil {
				return nil, err
			}
			usage.RunTimeSeconds = secs
			found = true
		case "cpu":
			secs, err := parseSeconds(value)
			if err != nil {
				return nil, err
			}
			usage.CPUTimeSeconds = secs
			found = true
		case "maxvmem":
			mem, err := gridMemoryToMB(value)
			if err != nil {
				return nil, err
			}
			usage.MaxMemMB = mem
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no accounting fields in qacct output")
	}
	return usage, nil
}

func parseSeconds(value string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", value, err)
	}
	return int64(f), nil
}

func gridMemoryToMB(value string) (int, error) {
	unit := ""
	number := value
	if last := value[len(value)-1]; last < '0' || last > '9' {
		unit = string(last)
		number = value[:len(value)-1]
	}
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse memory %q: %w", value, err)
	}
	return memoryToMB(n, unit), nil
}

func (s *OGE) JobIndexString() string { return "${SGE_TASK_ID}" }

func (s *OGE) Copy() Scheduler {
	return &OGE{base: s.copyBase()}
}
