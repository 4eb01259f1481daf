package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

func TestExecuteJobArraySubstitutesIndexToken(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	ambient := pbsContext(r, true)
	executor := NewExecutorService(NewProcessService(logger.Nop()), ambient, logger.Nop())
	dir := t.TempDir()

	result, err := executor.ExecuteJobArray(context.Background(), "split chunk.{JOB_INDEX}.fq",
		scheduler.NewJobArrayArgs(1, 5),
		Job{Name: "split", OutputDir: dir, Threads: 4, MemoryMB: 2000, RuntimeMins: 90})
	require.NoError(t, err)
	assert.Equal(t, 4176, result.JobID)

	commands := r.Commands()
	require.NotEmpty(t, commands)
	assert.Equal(t,
		`echo "split chunk.\${PBS_ARRAY_INDEX}.fq" | qsub -V -N split -l select=1:ncpus=4:mem=2000mb -l walltime=01:30:00 -j oe -o `+
			filepath.Join(dir, "split.log")+` -J 1-5:1 -W block=true`,
		commands[0])

	args := ambient.Scheduler().Args()
	assert.Nil(t, args.JobArray)
	assert.Equal(t, 1, args.Threads)
	assert.Empty(t, args.JobName)
	assert.True(t, ambient.Foreground())
}

func TestExecuteJobArrayValidation(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)

	unscheduled := NewExecutorService(NewProcessService(logger.Nop()), localContext(r), logger.Nop())
	_, err := unscheduled.ExecuteJobArray(context.Background(), "x", scheduler.NewJobArrayArgs(1, 2), Job{Name: "a"})
	var unsupported *batcherrors.UnsupportedError
	require.ErrorAs(t, err, &unsupported)

	scheduled := NewExecutorService(NewProcessService(logger.Nop()), pbsContext(r, true), logger.Nop())
	_, err = scheduled.ExecuteJobArray(context.Background(), "x", scheduler.NewJobArrayArgs(5, 1), Job{Name: "a"})
	var validationErr *batcherrors.ValidationError
	require.ErrorAs(t, err, &validationErr)

	assert.Empty(t, r.Commands())
}

func TestExecuteCommandWithDependencies(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	ambient := pbsContext(r, true)
	executor := NewExecutorService(NewProcessService(logger.Nop()), ambient, logger.Nop())
	dir := t.TempDir()

	_, err := executor.ExecuteCommand(context.Background(), "merge", Job{
		Name:      "merge",
		OutputDir: dir,
		Parallel:  true,
		DependsOn: []int{7, 8},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`echo "merge" | qsub -V -N merge -j oe -o ` + filepath.Join(dir, "merge.log") + ` -W depend=afterany:7:8`,
	}, r.Commands())
	assert.Empty(t, ambient.Scheduler().Args().WaitCondition)
}

func TestExecuteProcessOnUnscheduledContext(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	executor := NewExecutorService(NewProcessService(logger.Nop()), localContext(r), logger.Nop())
	dir := t.TempDir()

	result, err := executor.ExecuteProcess(context.Background(), alignProcess(t),
		map[string]string{"ref": "hg38.fa", "reads": "s1.fq"}, Job{Name: "align", OutputDir: dir, Threads: 8})
	require.NoError(t, err)
	assert.Equal(t, []string{"bwa mem hg38.fa s1.fq"}, r.Commands())
	assert.Equal(t, filepath.Join(dir, "align.log"), result.OutputFile)
	assert.False(t, executor.UsingScheduler())
}

func TestRunStageAppliesStageOptions(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	stageContext := pbsContext(r, true)
	stageContext.SetJobName("sort")
	executor := NewExecutorService(NewProcessService(logger.Nop()), pbsContext(r, true), logger.Nop())
	executor.SetStageOptions("align", StageOptions{MemoryMB: 1000})

	_, err := executor.RunStage(context.Background(), alignProcess(t),
		map[string]string{"ref": "hg38.fa", "reads": "s1.fq"}, stageContext)
	require.NoError(t, err)
	assert.Equal(t, `echo "bwa mem hg38.fa s1.fq" | qsub -V -N sort -l select=1:mem=1000mb -W block=true`, r.Commands()[0])
	assert.Zero(t, stageContext.Scheduler().Args().MemoryMB)
}

func TestRunStageSubmitsJobArray(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	split, err := process.NewCommandProcess("split", "split", "split {{.sample}}.{JOB_INDEX}.fq",
		[]process.Parameter{{Name: "sample", Required: true}})
	require.NoError(t, err)

	stageContext := pbsContext(r, false)
	stageContext.SetJobName("split")
	executor := NewExecutorService(NewProcessService(logger.Nop()), pbsContext(r, true), logger.Nop())
	executor.SetStageOptions("split", StageOptions{Threads: 8, JobArray: scheduler.NewJobArrayArgs(1, 3)})

	result, err := executor.RunStage(context.Background(), split, map[string]string{"sample": "s1"}, stageContext)
	require.NoError(t, err)
	assert.Equal(t, 4176, result.JobID)
	assert.Equal(t,
		`echo "split s1.\${PBS_ARRAY_INDEX}.fq" | qsub -V -N split -l select=1:ncpus=8 -J 1-3:1 -W block=true`,
		r.Commands()[0])
	assert.Nil(t, stageContext.Scheduler().Args().JobArray)
}

func TestRunStageJobArrayNeedsScheduler(t *testing.T) {
	t.Parallel()

	r := newRecorder(t)
	executor := NewExecutorService(NewProcessService(logger.Nop()), localContext(r), logger.Nop())
	executor.SetStageOptions("align", StageOptions{JobArray: scheduler.NewJobArrayArgs(1, 3)})

	_, err := executor.RunStage(context.Background(), alignProcess(t),
		map[string]string{"ref": "hg38.fa", "reads": "s1.fq"}, localContext(r))
	var unsupported *batcherrors.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, r.Commands())
}
