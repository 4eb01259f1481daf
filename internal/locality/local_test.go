package locality

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	"github.com/alexisbeaulieu97/batchrun/internal/shell"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

const lsfReport = `Sender: LSF System <lsfadmin@n78049>
Job was executed on host(s) <n78049>, in queue <normal>, as user <maplesod> in cluster <tgac>.
%s

Resource usage summary:

    CPU time   :    137.00 sec.
    Max Memory :       214 MB
    Run time   :        138 sec.
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

// fakeBsub simulates LSF: it acknowledges the submission and later writes one job
// report per monitor file.
func fakeBsub(t *testing.T, reports map[string]string, submissions *atomic.Int32) shell.Runner {
	t.Helper()
	return shell.RunnerFunc(func(_ context.Context, command string) (shell.Result, error) {
		if submissions != nil {
			submissions.Add(1)
		}
		go func() {
			time.Sleep(30 * time.Millisecond)
			for path, content := range reports {
				_ = os.WriteFile(path, []byte(content), 0o644)
			}
		}()
		line := "Job <12> is submitted to default queue <normal>."
		return shell.Result{Stdout: []string{line}, Combined: []string{line}}, nil
	})
}

func lsfWithMonitor(t *testing.T) (*scheduler.LSF, string) {
	t.Helper()
	monitorFile := filepath.Join(t.TempDir(), "job.log")
	args := scheduler.NewArgs()
	args.MonitorFile = monitorFile
	args.MonitorInterval = 10 * time.Millisecond
	return scheduler.NewLSF(scheduler.WithArgs(args)), monitorFile
}

func TestLocalExecuteCapturesOutput(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	local := NewLocal()
	require.NoError(t, local.EstablishConnection(context.Background()))
	defer func() { require.NoError(t, local.Disconnect()) }()

	res, err := local.Execute(context.Background(), "echo", "echo one; echo two >&2", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.ElementsMatch(t, []string{"one", "two"}, res.Output)
	assert.Equal(t, -1, res.JobID)
	assert.Equal(t, "localhost", local.Description())
}

func TestLocalExecuteNonZeroExit(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	_, err := NewLocal().Execute(context.Background(), "fail", "echo broken; exit 4", nil)
	var pex *batcherrors.ProcessExecutionError
	require.ErrorAs(t, err, &pex)
	assert.Equal(t, 4, pex.ExitCode)
	assert.Equal(t, []string{"broken"}, pex.Output)
	assert.NotEmpty(t, pex.Host)
	assert.False(t, pex.Abort)
}

func TestLocalExecuteCancelled(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewLocal().Execute(ctx, "sleep", "sleep 5", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalExecuteExtractsJobID(t *testing.T) {
	t.Parallel()

	runner := shell.RunnerFunc(func(context.Context, string) (shell.Result, error) {
		return shell.Result{
			Stdout:   []string{"queued"},
			Stderr:   []string{"salloc: Granted job allocation 65537"},
			Combined: []string{"queued", "salloc: Granted job allocation 65537"},
		}, nil
	})
	local := NewLocal(WithRunner(runner))

	res, err := local.Execute(context.Background(), "slurm", "salloc true", scheduler.NewSLURM())
	require.NoError(t, err)
	assert.Equal(t, 65537, res.JobID)

	stdoutSlurm := scheduler.NewSLURM()
	stdoutSlurm.SetJobIDSource(scheduler.JobIDFromStdout)
	res, err = local.Execute(context.Background(), "slurm", "salloc true", stdoutSlurm)
	require.NoError(t, err)
	assert.Equal(t, -1, res.JobID, "stdout carries no job id here")
}

func TestLocalMonitoredExecuteSingleJob(t *testing.T) {
	t.Parallel()

	lsf, monitorFile := lsfWithMonitor(t)
	require.NoError(t, os.WriteFile(monitorFile, []byte("stale\nSuccessfully completed.\n"), 0o644))

	var submissions atomic.Int32
	local := NewLocal(WithRunner(fakeBsub(t, map[string]string{
		monitorFile: fmt.Sprintf(lsfReport, "Successfully completed."),
	}, &submissions)))

	res, err := local.MonitoredExecute(context.Background(), "align", lsf.CreateCommand("sleep 1", true), lsf)
	require.NoError(t, err)
	assert.Equal(t, int32(1), submissions.Load())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 12, res.JobID)
	assert.Equal(t, monitorFile, res.OutputFile)
	assert.NotContains(t, res.Output, "stale")
	require.NotNil(t, res.ResourceUsage)
	assert.Equal(t, int64(137), res.ResourceUsage.CPUTimeSeconds)
	assert.Equal(t, 214, res.ResourceUsage.MaxMemMB)
}

func TestLocalMonitoredExecuteSingleJobFailure(t *testing.T) {
	t.Parallel()

	lsf, monitorFile := lsfWithMonitor(t)
	local := NewLocal(WithRunner(fakeBsub(t, map[string]string{
		monitorFile: fmt.Sprintf(lsfReport, "Exited with exit code 5."),
	}, nil)))

	_, err := local.MonitoredExecute(context.Background(), "align", "bsub x", lsf)
	var pex *batcherrors.ProcessExecutionError
	require.ErrorAs(t, err, &pex)
	assert.Equal(t, 5, pex.ExitCode)
	assert.Equal(t, "n78049", pex.Host)
	assert.NotEmpty(t, pex.Output)
}

func TestLocalMonitoredExecuteJobArray(t *testing.T) {
	t.Parallel()

	lsf, monitorFile := lsfWithMonitor(t)
	lsf.Args().JobArray = scheduler.NewJobArrayArgs(1, 5)

	reports := map[string]string{}
	for i := 1; i <= 5; i++ {
		status := "Successfully completed."
		if i == 3 {
			status = "Exited with exit code 2."
		}
		reports[fmt.Sprintf("%s.%d", monitorFile, i)] = fmt.Sprintf(lsfReport, status)
	}
	local := NewLocal(WithRunner(fakeBsub(t, reports, nil)))

	res, err := local.MonitoredExecute(context.Background(), "array", "bsub x", lsf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, []string{"Job Array Error: 1 out of 5 jobs failed in the array."}, res.Output)
	assert.Equal(t, 12, res.JobID)
}

func TestLocalMonitoredExecuteJobArraySuccess(t *testing.T) {
	t.Parallel()

	lsf, monitorFile := lsfWithMonitor(t)
	lsf.Args().JobArray = &scheduler.JobArrayArgs{MinIndex: 2, MaxIndex: 6, StepIndex: 2}

	reports := map[string]string{}
	for _, i := range []int{2, 4, 6} {
		reports[fmt.Sprintf("%s.%d", monitorFile, i)] = fmt.Sprintf(lsfReport, "Successfully completed.")
	}
	local := NewLocal(WithRunner(fakeBsub(t, reports, nil)))

	res, err := local.MonitoredExecute(context.Background(), "array", "bsub x", lsf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"All jobs in array completed successfully."}, res.Output)
}

func TestLocalMonitoredExecuteWithoutFileMonitor(t *testing.T) {
	t.Parallel()

	runner := shell.RunnerFunc(func(_ context.Context, command string) (shell.Result, error) {
		assert.True(t, strings.HasPrefix(command, "echo"))
		return shell.Result{Stdout: []string{"4176.UV00000010-P002"}, Combined: []string{"4176.UV00000010-P002"}}, nil
	})
	pbs := scheduler.NewPBS()
	res, err := NewLocal(WithRunner(runner)).MonitoredExecute(context.Background(), "pbs", pbs.CreateCommand("true", true), pbs)
	require.NoError(t, err)
	assert.Equal(t, 4176, res.JobID)
}

func TestLocalMonitoredExecuteRequiresMonitorFile(t *testing.T) {
	t.Parallel()

	var submissions atomic.Int32
	local := NewLocal(WithRunner(fakeBsub(t, nil, &submissions)))
	lsf := scheduler.NewLSF()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := local.MonitoredExecute(ctx, "align", lsf.CreateCommand("sleep 1", true), lsf)
	var validationErr *batcherrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "monitor_file", validationErr.Field)
	assert.Zero(t, submissions.Load())
	assert.NoError(t, ctx.Err())
}

func TestLocalMonitoredExecuteRequiresScheduler(t *testing.T) {
	t.Parallel()

	_, err := NewLocal().MonitoredExecute(context.Background(), "x", "true", nil)
	var unsupported *batcherrors.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
}

func TestLocalCopy(t *testing.T) {
	t.Parallel()

	local := NewLocal()
	copied := local.Copy()
	require.NotSame(t, local, copied)
	assert.Equal(t, "localhost", copied.Description())
}
