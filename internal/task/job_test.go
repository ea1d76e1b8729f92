package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRequiresAssignedID(t *testing.T) {
	j := NewCopyJob("a", "b")
	_, err := j.compile(0, map[*Job]bool{j: true})
	require.Error(t, err)

	var want *CompilationPreconditionError
	require.ErrorAs(t, err, &want)
	assert.Equal(t, 0, want.JobIndex)
}

func TestCompileRejectsDependencyOutsidePool(t *testing.T) {
	outsider := NewCopyJob("x", "y")
	outsider.id = 1

	j := NewCopyJob("a", "b")
	j.id = 2
	j.WithDependsOn(outsider)

	_, err := j.compile(0, map[*Job]bool{j: true})
	require.Error(t, err)

	var want *DanglingDependencyError
	require.ErrorAs(t, err, &want)
}

func TestCompileProducesMatchingTask(t *testing.T) {
	dep := NewCopyJob("src", "dst")
	dep.id = 1

	j := NewRunScriptJob("run.sh", "%d", map[string]any{"x": 1}).
		WithDependsOn(dep).
		WithReqTime(120).
		WithForTaxi("taxi-1")
	j.id = 2

	pool := map[*Job]bool{dep: true, j: true}
	tk, err := j.compile(1, pool)
	require.NoError(t, err)

	assert.Equal(t, int64(2), tk.ID)
	assert.Equal(t, TaskRunScript, tk.TaskType)
	assert.Equal(t, []int64{1}, tk.DependsOn)
	assert.Equal(t, int64(120), tk.ReqTime)
	require.NotNil(t, tk.ForTaxi)
	assert.Equal(t, "taxi-1", *tk.ForTaxi)
	assert.Equal(t, float64(-1), tk.StartTime)
	assert.Equal(t, float64(-1), tk.RunTime)
}

func TestCompileIsIdempotent(t *testing.T) {
	j := NewCopyJob("a", "b")
	j.id = 5
	pool := map[*Job]bool{j: true}

	first, err := j.compile(0, pool)
	require.NoError(t, err)
	second, err := j.compile(0, pool)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TaskType, second.TaskType)
	assert.Equal(t, first.DependsOn, second.DependsOn)
}

func TestRespawnJobIsAlwaysRecurring(t *testing.T) {
	j := NewRespawnJob()
	assert.True(t, j.IsRecurring)
}

func TestWithPriorityOverridesDefault(t *testing.T) {
	j := NewCopyJob("a", "b")
	assert.Equal(t, -1, j.Priority)

	j.WithPriority(3)
	assert.Equal(t, 3, j.Priority)
}
