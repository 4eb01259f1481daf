// Package scheduler generates native submission syntax for HPC batch systems and
// parses their job ids and accounting reports.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/monitor"
	"github.com/alexisbeaulieu97/batchrun/internal/shell"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// Scheduler is one batch system family.
type Scheduler interface {
	Name() string
	SubmitCommand() string
	Args() *Args
	SetArgs(args *Args)

	// CreateCommand wraps cmd in the native submission syntax.
	CreateCommand(cmd string, foreground bool) string
	// CreateWaitCommand builds a trivial job that only starts once cond is satisfied.
	CreateWaitCommand(cond string) string
	CreateKillCommand(jobID string) string
	CreateWaitCondition(status ExitStatus, condition string) string
	CreateWaitConditionForJobs(status ExitStatus, jobIDs []int) string

	ExtractJobIDFromOutput(line string) (int, error)
	GeneratesJobIDFromOutput() bool
	GeneratesJobIDFromError() bool

	UsesFileMonitor() bool
	// CreateProcessAdapter returns the monitor for one array index, or for the
	// whole job when index is negative. Nil when the scheduler does not use file monitoring.
	CreateProcessAdapter(index int) *monitor.Adapter

	ResourceUsageFromMonitorFile(path string) (*model.ResourceUsage, error)
	ResourceUsageFromID(ctx context.Context, id int) (*model.ResourceUsage, error)

	// JobIndexString is the runtime variable holding the current array index.
	JobIndexString() string

	Copy() Scheduler
}

// Option configures a scheduler at construction.
type Option func(*base)

// WithArgs sets the initial submission args.
func WithArgs(args *Args) Option {
	return func(b *base) {
		if args != nil {
			b.args = args
		}
	}
}

// WithRunner replaces the shell used for accounting queries.
func WithRunner(runner shell.Runner) Option {
	return func(b *base) {
		if runner != nil {
			b.runner = runner
		}
	}
}

// WithLogger injects the logger.
func WithLogger(log *logger.Logger) Option {
	return func(b *base) {
		b.log = log
	}
}

type base struct {
	submit string
	args   *Args
	runner shell.Runner
	log    *logger.Logger
}

func newBase(name, submit string, opts []Option) base {
	b := base{submit: submit, args: NewArgs(), runner: shell.Default}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.Component("scheduler").WithFields(map[string]any{"scheduler": name})
	return b
}

func (b *base) SubmitCommand() string { return b.submit }

func (b *base) Args() *Args { return b.args }

func (b *base) SetArgs(args *Args) {
	if args == nil {
		args = NewArgs()
	}
	b.args = args
}

func (b *base) copyBase() base {
	return base{submit: b.submit, args: b.args.Copy(), runner: b.runner, log: b.log}
}

func (b *base) isArray() bool {
	return b.args.JobArray != nil
}

// Type names a scheduler family.
type Type string

const (
	TypeLSF   Type = "LSF"
	TypePBS   Type = "PBS"
	TypeSLURM Type = "SLURM"
	TypeOGE   Type = "OGE"
)

// Types lists every supported family.
func Types() []Type {
	return []Type{TypeLSF, TypePBS, TypeSLURM, TypeOGE}
}

// ParseType resolves a case-insensitive scheduler name.
func ParseType(name string) (Type, error) {
	upper := Type(strings.ToUpper(strings.TrimSpace(name)))
	for _, t := range Types() {
		if upper == t {
			return t, nil
		}
	}
	return "", batcherrors.NewValidationError("scheduler", fmt.Sprintf("unknown scheduler %q", name), nil)
}

// New creates a scheduler by name; an empty name selects LSF.
func New(name string, opts ...Option) (Scheduler, error) {
	if strings.TrimSpace(name) == "" {
		return NewLSF(opts...), nil
	}
	t, err := ParseType(name)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypePBS:
		return NewPBS(opts...), nil
	case TypeSLURM:
		return NewSLURM(opts...), nil
	case TypeOGE:
		return NewOGE(opts...), nil
	default:
		return NewLSF(opts...), nil
	}
}

// ResourceUsage retrieves accounting data for a finished job. File monitoring
// schedulers read the result's output file; the others query by job id. Failures
// are logged and yield nil usage.
func ResourceUsage(ctx context.Context, s Scheduler, result *model.ExecutionResult, log *logger.Logger) *model.ResourceUsage {
	if s == nil || result == nil {
		return nil
	}

	var (
		usage *model.ResourceUsage
		err   error
	)
	switch {
	case s.UsesFileMonitor():
		if result.OutputFile == "" {
			return nil
		}
		usage, err = s.ResourceUsageFromMonitorFile(result.OutputFile)
	case result.JobID != model.UnknownJobID:
		usage, err = s.ResourceUsageFromID(ctx, result.JobID)
	default:
		return nil
	}

	if err != nil {
		log.Error(batcherrors.NewResourceUsageError(s.Name(), result.JobID, err), "could not acquire resource usage")
		return nil
	}
	return usage
}

// ExtractJobID scans output lines and returns the first job id that parses.
func ExtractJobID(s Scheduler, lines []string) (int, bool) {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if id, err := s.ExtractJobIDFromOutput(line); err == nil {
			return id, true
		}
	}
	return model.UnknownJobID, false
}

func quote(s string) string {
	return `"` + s + `"`
}

// clockToSeconds converts [D-]HH:MM:SS, MM:SS or SS (with optional fractional seconds).
func clockToSeconds(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var days int64
	if d, rest, ok := strings.Cut(value, "-"); ok {
		parsed, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse days in %q: %w", value, err)
		}
		days = parsed
		value = rest
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("malformed duration %q", value)
	}

	var total int64
	for i, part := range parts {
		if i == len(parts)-1 {
			part, _, _ = strings.Cut(part, ".")
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", value, err)
		}
		total = total*60 + n
	}
	return days*86400 + total, nil
}
