package task

// Forest is the in-memory, transient decomposition of a job pool into
// dependency-ordered trees (spec.md §3, §4.2). It is used solely to
// drive priority assignment and is discarded once that's done.
type Forest struct {
	Trees [][]*Job
}

// buildForest runs the forest-building algorithm of spec.md §4.2.
// Grounded on ai/agents/orchestrator/dag_scheduler.go's graph/inDegree
// side-tables (per §9 Design Notes, reverse-dependents are tracked in
// a side-table here rather than threaded onto Job).
func buildForest(jobPool []*Job) (*Forest, error) {
	inPool := make(map[*Job]bool, len(jobPool))
	for _, j := range jobPool {
		inPool[j] = true
	}

	// 1-2: reset/rebuild the reverse-dependents side-table.
	dependents := make(map[*Job][]*Job, len(jobPool))
	for idx, j := range jobPool {
		for _, d := range j.DependsOn {
			if !inPool[d] {
				return nil, &DanglingDependencyError{JobIndex: idx}
			}
			dependents[d] = append(dependents[d], j)
		}
	}

	if cyclic := detectCycle(jobPool); cyclic > 0 {
		return nil, &CyclicDependencyError{Remaining: cyclic}
	}

	// 3: seed one singleton tree per root (no dependencies).
	var trees [][]*Job
	visited := make(map[*Job]bool, len(jobPool))
	for _, j := range jobPool {
		if len(j.DependsOn) == 0 {
			trees = append(trees, []*Job{j})
			visited[j] = true
		}
	}

	// 4: walk each tree in insertion order, following the fork rule.
	// Both the outer list of trees and each individual tree can grow
	// while being walked (a trunk job's dependents are appended to
	// the tree, or spun off into a brand-new tree); index-based loops
	// pick those appends up, matching the reference's behavior of
	// iterating a live, growing list.
	for ti := 0; ti < len(trees); ti++ {
		for ji := 0; ji < len(trees[ti]); ji++ {
			treeJob := trees[ti][ji]
			if !treeJob.Trunk {
				continue
			}

			nTrunksFound := 0
			for _, d := range dependents[treeJob] {
				if d.Trunk {
					nTrunksFound++
					if nTrunksFound > 1 {
						// Fork: subsequent trunk dependents start a new tree.
						trees = append(trees, []*Job{d})
						visited[d] = true
						continue
					}
				}
				// Normal behavior: build on the current tree.
				trees[ti] = append(trees[ti], d)
				visited[d] = true
			}
		}
	}

	// Edge case: a job with dependencies that never got reached by the
	// walk above (because reaching it would require passing through a
	// non-trunk job, which the algorithm does not propagate through)
	// is an orphan.
	for idx, j := range jobPool {
		if !visited[j] {
			return nil, &OrphanJobError{JobIndex: idx}
		}
	}

	return &Forest{Trees: trees}, nil
}

// detectCycle returns the number of jobs left over after a Kahn's
// Algorithm topological sort (the same approach
// ai/agents/orchestrator/dag_scheduler.go uses for execution order),
// or 0 if the dependency graph is acyclic. Any job still unprocessed
// once the queue of zero-remaining-dependency jobs runs dry sits on a
// cycle.
func detectCycle(jobPool []*Job) int {
	inDegree := make(map[*Job]int, len(jobPool))
	downstream := make(map[*Job][]*Job, len(jobPool))
	for _, j := range jobPool {
		inDegree[j] = len(j.DependsOn)
		for _, d := range j.DependsOn {
			downstream[d] = append(downstream[d], j)
		}
	}

	queue := make([]*Job, 0, len(jobPool))
	for _, j := range jobPool {
		if inDegree[j] == 0 {
			queue = append(queue, j)
		}
	}

	processed := 0
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		processed++
		for _, down := range downstream[j] {
			inDegree[down]--
			if inDegree[down] == 0 {
				queue = append(queue, down)
			}
		}
	}

	return len(jobPool) - processed
}
