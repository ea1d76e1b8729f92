package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignIDsSequentialFromStart(t *testing.T) {
	jobs := []*Job{NewCopyJob("a", "b"), NewCopyJob("c", "d"), NewCopyJob("e", "f")}
	AssignIDs(jobs, 10)

	assert.Equal(t, int64(10), jobs[0].id)
	assert.Equal(t, int64(11), jobs[1].id)
	assert.Equal(t, int64(12), jobs[2].id)
}

func TestCompilePoolBuildsForestAssignsPrioritiesAndCompiles(t *testing.T) {
	root := NewCopyJob("a", "b").WithTrunk(true)
	child := NewRunScriptJob("run.sh", "%d", nil).WithDependsOn(root)
	jobs := []*Job{root, child}
	AssignIDs(jobs, 1)

	tasks, err := CompilePool(jobs, PolicyTree)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, int64(1), tasks[0].ID)
	assert.Equal(t, int64(2), tasks[1].ID)
	assert.Equal(t, []int64{1}, tasks[1].DependsOn)
	assert.Greater(t, tasks[0].Priority, 0)
}

func TestCompilePoolEmptyPoolIsNoop(t *testing.T) {
	tasks, err := CompilePool(nil, PolicyTree)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCompilePoolPropagatesForestErrors(t *testing.T) {
	a := NewCopyJob("a", "b")
	b := NewCopyJob("b", "c")
	a.WithDependsOn(b)
	b.WithDependsOn(a)
	jobs := []*Job{a, b}
	AssignIDs(jobs, 1)

	_, err := CompilePool(jobs, PolicyTree)
	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
}
