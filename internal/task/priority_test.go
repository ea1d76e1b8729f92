package task

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparePriorityTotalOrder(t *testing.T) {
	assert.Equal(t, 0, ComparePriority(-1, -5)) // negatives tied
	assert.Equal(t, -1, ComparePriority(1, 2))  // smaller positive wins
	assert.Equal(t, 1, ComparePriority(2, 1))
	assert.Equal(t, -1, ComparePriority(1, -1)) // positive beats negative
	assert.Equal(t, 1, ComparePriority(-1, 1))
	assert.Equal(t, 0, ComparePriority(3, 3))
}

func TestComparePrioritySortsAscendingBySmallerFirst(t *testing.T) {
	prios := []int{-1, 5, 2, -3, 1}
	sort.SliceStable(prios, func(i, j int) bool { return ComparePriority(prios[i], prios[j]) < 0 })
	assert.Equal(t, []int{1, 2, 5, -1, -3}, prios)
}

func TestAssignPrioritiesTreePolicyDrainsOneTreeAtATime(t *testing.T) {
	rootA := NewCopyJob("a", "a2")
	rootB := NewCopyJob("b", "b2")
	jobs := []*Job{rootA, rootB}

	forest, err := buildForest(jobs)
	require.NoError(t, err)
	require.Len(t, forest.Trees, 2)

	require.NoError(t, assignPriorities(jobs, forest, PolicyTree))
	assert.NotEqual(t, rootA.Priority, rootB.Priority)
	assert.Greater(t, rootA.Priority, 0)
	assert.Greater(t, rootB.Priority, 0)
}

func TestAssignPrioritiesNeverOverwritesUserPriority(t *testing.T) {
	root := NewCopyJob("a", "b").WithPriority(7)
	jobs := []*Job{root}
	forest, err := buildForest(jobs)
	require.NoError(t, err)

	require.NoError(t, assignPriorities(jobs, forest, PolicyTree))
	assert.Equal(t, 7, root.Priority)
}

func TestAssignPrioritiesAnarchyLeavesDefaults(t *testing.T) {
	root := NewCopyJob("a", "b")
	jobs := []*Job{root}
	forest, err := buildForest(jobs)
	require.NoError(t, err)

	require.NoError(t, assignPriorities(jobs, forest, PolicyAnarchy))
	assert.Equal(t, -1, root.Priority)
}

func TestAssignPrioritiesTrunkPolicyUnsupported(t *testing.T) {
	root := NewCopyJob("a", "b")
	jobs := []*Job{root}
	forest, err := buildForest(jobs)
	require.NoError(t, err)

	err = assignPriorities(jobs, forest, PolicyTrunk)
	var unsupported *UnsupportedPolicyError
	require.ErrorAs(t, err, &unsupported)
}
