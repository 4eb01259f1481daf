package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutionResultDefaults(t *testing.T) {
	t.Parallel()

	res := NewExecutionResult("bwa", 0, []string{"first", "second"}, "")
	require.Equal(t, UnknownJobID, res.JobID)
	require.Nil(t, res.ResourceUsage)
	require.Equal(t, "first", res.FirstOutputLine())
	require.Equal(t, "bwa\t0\t-1\t0\t0\t0", res.String())

	empty := NewExecutionResult("noop", 0, nil, "")
	require.Equal(t, "", empty.FirstOutputLine())
}

func TestExecutionResultStringIncludesUsage(t *testing.T) {
	t.Parallel()

	res := NewExecutionResult("sort", 1, nil, "").WithJobID(4176)
	res.ResourceUsage = NewResourceUsage(21, 10, 91)
	require.Equal(t, "sort\t1\t4176\t21\t10\t91", res.String())
	require.Equal(t, "MaxMem(MB): 21; WallClock(s): 10; CPUTime(s): 91", res.ResourceUsage.Verbose())
}

func TestWriteOutputToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stage.log")
	res := NewExecutionResult("stage", 0, []string{"a", "b"}, "")
	require.NoError(t, res.WriteOutputToFile(path))
	require.Equal(t, path, res.OutputFile)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(data))
}

func TestTaskResultAggregates(t *testing.T) {
	t.Parallel()

	first := NewExecutionResult("one", 0, nil, "")
	first.ResourceUsage = NewResourceUsage(100, 20, 15)
	second := NewExecutionResult("two", 0, nil, "")
	second.ResourceUsage = NewResourceUsage(300, 5, 30)
	third := NewExecutionResult("three", 0, nil, "")

	result := NewTaskResult("demo", true, []*ExecutionResult{first, second, third}, 42*time.Second)
	require.True(t, result.AllSubTasksSuccess())
	require.Equal(t, int64(25), result.TotalExternalRuntime())
	require.Equal(t, int64(45), result.TotalExternalCPUTime())
	require.Equal(t, 300, result.MaxMemUsage())

	report := result.Report()
	require.Equal(t, "Runtimes and resource usage for task: demo", report[0])
	require.Equal(t, "  Total wall clock runtime (s): 42", report[1])
	require.Equal(t, "Number of sub-processes executed for this task: 3", report[5])
	require.Len(t, report, 8+3)
	require.True(t, strings.HasPrefix(report[8], "one\t0\t-1\t100"))
}

func TestAllSubTasksSuccessFalseOnAnyNonZero(t *testing.T) {
	t.Parallel()

	results := []*ExecutionResult{
		NewExecutionResult("ok", 0, nil, ""),
		NewExecutionResult("bad", 3, nil, ""),
	}
	result := NewTaskResult("demo", false, results, 0)
	require.False(t, result.AllSubTasksSuccess())

	results[1] = NewExecutionResult("fixed", 0, nil, "")
	require.False(t, result.AllSubTasksSuccess(), "task result keeps its own copy of the slice")
}

func TestNilResourceUsageString(t *testing.T) {
	t.Parallel()

	var usage *ResourceUsage
	require.Equal(t, "0\t0\t0", usage.String())
	require.Equal(t, "MaxMem(MB): 0; WallClock(s): 0; CPUTime(s): 0", usage.Verbose())
}
