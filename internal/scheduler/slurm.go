package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
)

const slurmArgSep = ":"

// JobIDSource tells where a SLURM submission prints its job id.
type JobIDSource string

const (
	// JobIDFromStdout reads "Submitted batch job N" from sbatch.
	JobIDFromStdout JobIDSource = "stdout"
	// JobIDFromStderr reads "salloc: Granted job allocation N" from salloc.
	JobIDFromStderr JobIDSource = "stderr"
)

// SLURM uses salloc for foreground jobs and sbatch for background ones.
type SLURM struct {
	base
	idSource JobIDSource
}

// NewSLURM creates a SLURM scheduler that reads job ids from stderr.
func NewSLURM(opts ...Option) *SLURM {
	return &SLURM{base: newBase(string(TypeSLURM), "sbatch", opts), idSource: JobIDFromStderr}
}

// SetJobIDSource selects the stream used for job id extraction.
func (s *SLURM) SetJobIDSource(src JobIDSource) {
	if src == JobIDFromStdout || src == JobIDFromStderr {
		s.idSource = src
	}
}

// JobIDSource returns the configured stream.
func (s *SLURM) JobIDSource() JobIDSource { return s.idSource }

func (s *SLURM) Name() string { return string(TypeSLURM) }

func (s *SLURM) argString(foreground bool) string {
	a := s.args
	var f flags

	outSuffix, errSuffix := ".stdout", ".stderr"
	if ja := a.JobArray; ja != nil {
		spec := fmt.Sprintf("%d-%d", ja.MinIndex, ja.MaxIndex)
		if ja.step() > 1 {
			spec += slurmArgSep + strconv.Itoa(ja.step())
		}
		if ja.MaxSimultaneousJobs > 0 {
			spec += fmt.Sprintf("%%%d", ja.MaxSimultaneousJobs)
		}
		f.add("-a", spec)
		outSuffix, errSuffix = ".%a.stdout", ".%a.stderr"
	}
	if a.MonitorFile != "" && !foreground {
		f.add("-o", a.MonitorFile+outSuffix)
		f.add("-e", a.MonitorFile+errSuffix)
	}

	f.add("-N", "1")
	f.addIf(a.Threads > 1, "-n", strconv.Itoa(a.Threads))
	f.add("-p", a.QueueName)
	f.add("-J", a.JobName)
	f.add("-D", "$(pwd)")
	f.add("--profile=all")
	f.addIf(a.MemoryMB > 0, "--mem="+strconv.Itoa(a.MemoryMB))
	f.addIf(a.EstimatedRuntimeMins > 0, "-t", strconv.Itoa(a.EstimatedRuntimeMins))
	f.add("-d", a.WaitCondition)
	f.add(strings.TrimSpace(a.ExtraArgs))
	return f.String()
}

// CreateCommand renders "salloc <args> <cmd>" in the foreground and
// `sbatch <args> --wrap="<cmd>"` otherwise.
func (s *SLURM) CreateCommand(cmd string, foreground bool) string {
	if foreground {
		f := flags{"salloc"}
		f.add(s.argString(true))
		f.add(cmd)
		return f.String()
	}
	f := flags{s.submit}
	f.add(s.argString(false))
	f.add("--wrap=" + quote(cmd))
	return f.String()
}

func (s *SLURM) CreateWaitCommand(cond string) string {
	f := flags{"srun", "-d" + cond}
	f.add("-p", s.args.QueueName)
	if s.args.MonitorFile != "" {
		f.add("-e", s.args.MonitorFile, "-o", s.args.MonitorFile)
	}
	f.add("--time=1", "sleep", "1")
	return f.String()
}

func (s *SLURM) CreateKillCommand(jobID string) string {
	return "scancel " + jobID
}

func (s *SLURM) CreateWaitCondition(status ExitStatus, condition string) string {
	return status.dependCondition() + slurmArgSep + condition
}

func (s *SLURM) CreateWaitConditionForJobs(status ExitStatus, jobIDs []int) string {
	return s.CreateWaitCondition(status, joinInts(jobIDs, slurmArgSep))
}

// ExtractJobIDFromOutput reads the fourth field in stdout mode and the trailing
// numeric token in stderr mode.
func (s *SLURM) ExtractJobIDFromOutput(line string) (int, error) {
	fields := strings.Fields(line)
	if s.idSource == JobIDFromStdout {
		if len(fields) >= 4 {
			if id, err := strconv.Atoi(fields[3]); err == nil {
				return id, nil
			}
		}
		return model.UnknownJobID, fmt.Errorf("could not extract SLURM job id from: %s", line)
	}

	if len(fields) > 0 {
		if id, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return id, nil
		}
	}
	return model.UnknownJobID, fmt.Errorf("could not extract SLURM job id from: %s", line)
}

func (s *SLURM) GeneratesJobIDFromOutput() bool { return s.idSource == JobIDFromStdout }

func (s *SLURM) GeneratesJobIDFromError() bool { return s.idSource == JobIDFromStderr }

func (s *SLURM) UsesFileMonitor() bool { return false }

func (s *SLURM) CreateProcessAdapter(int) *monitor.Adapter { return nil }

func (s *SLURM) ResourceUsageFromMonitorFile(string) (*model.ResourceUsage, error) {
	return nil, nil
}

// ResourceUsageFromID queries sacct for CPU time, peak RSS and elapsed time.
func (s *SLURM) ResourceUsageFromID(ctx context.Context, id int) (*model.ResourceUsage, error) {
	res, err := s.runner.Run(ctx, fmt.Sprintf("sacct --format=CPUTime,MaxRSS,Elapsed -j %d", id))
	if err != nil {
		return nil, err
	}
	if len(res.Stdout) < 3 {
		return nil, fmt.Errorf("could not find any resource content for SLURM job %d", id)
	}
	return parseSacct(res.Stdout)
}

// parseSacct reads the last data row. A missing MaxRSS column leaves two fields.
func parseSacct(lines []string) (*model.ResourceUsage, error) {
	var row []string
	for i := len(lines) - 1; i >= 0; i-- {
		if fields := strings.Fields(lines[i]); len(fields) > 0 {
			row = fields
			break
		}
	}

	usage := &model.ResourceUsage{}
	var cpu, elapsed string
	switch len(row) {
	case 3:
		cpu, elapsed = row[0], row[2]
		mem, err := rssToMB(row[1])
		if err != nil {
			return nil, err
		}
		usage.MaxMemMB = mem
	case 2:
		cpu, elapsed = row[0], row[1]
	default:
		return nil, fmt.Errorf("unexpected sacct row %q", strings.Join(row, " "))
	}

	var err error
	if usage.CPUTimeSeconds, err = clockToSeconds(cpu); err != nil {
		return nil, err
	}
	if usage.RunTimeSeconds, err = clockToSeconds(elapsed); err != nil {
		return nil, err
	}
	return usage, nil
}

func rssToMB(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	unit := value[len(value)-1:]
	number := value
	if _, err := strconv.Atoi(unit); err != nil {
		number = value[:len(value)-1]
	} else {
		unit = "K"
	}
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse MaxRSS %q: %w", value, err)
	}
	return memoryToMB(n, unit), nil
}

func (s *SLURM) JobIndexString() string { return "${SLURM_ARRAY_TASK_ID}" }

func (s *SLURM) Copy() Scheduler {
	return &SLURM{base: s.copyBase(), idSource: s.idSource}
}
