package task

// AssignIDs gives every job in the pool a sequential id starting at
// startID, in slice order. Mirrors initialize_new_job_pool's id
// allocation from the store's current max id (spec.md §4.1): callers
// are expected to pass store.GetMaxID()+1.
func AssignIDs(jobs []*Job, startID int64) {
	next := startID
	for _, j := range jobs {
		j.id = next
		next++
	}
}

// CompilePool runs the full compile-time pipeline over a pool of jobs
// that have already been assigned ids: build the dependency forest,
// assign priorities per policy, then compile every job into its Task
// record. It is the pure (store-free) half of initialize_new_job_pool.
func CompilePool(jobs []*Job, policy PriorityPolicy) ([]*Task, error) {
	forest, err := buildForest(jobs)
	if err != nil {
		return nil, err
	}
	if err := assignPriorities(jobs, forest, policy); err != nil {
		return nil, err
	}

	pool := make(map[*Job]bool, len(jobs))
	for _, j := range jobs {
		pool[j] = true
	}

	tasks := make([]*Task, len(jobs))
	for i, j := range jobs {
		t, err := j.compile(i, pool)
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}
