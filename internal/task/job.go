package task

// Job is the user-facing, pre-persistence description of a unit of
// work (spec.md §3). Jobs are transient: they exist only during forest
// construction and are destroyed once compile() has populated the
// corresponding Task record. Unlike the original reference, reverse
// dependencies are not threaded onto the Job itself (see forest.go);
// a Job only ever points at its own dependencies.
type Job struct {
	// id is zero until assigned by a Dispatcher during initialization.
	id int64

	Kind        TaskType
	Args        TaskArgs
	DependsOn   []*Job
	Trunk       bool
	Priority    int
	ReqTime     int64
	IsRecurring bool
	ForTaxi     *string
	Status      TaskStatus

	compiled *Task
}

func newJob(kind TaskType, args TaskArgs) *Job {
	return &Job{
		Kind:     kind,
		Args:     args,
		Priority: -1, // default: lowest priority, see spec.md §4.3
		Status:   StatusPending,
	}
}

// NewJob builds a Job directly from a task_type/task_args pair,
// bypassing the typed constructors below. Callers that receive jobs
// as generic wire payloads (internal/api's job-pool endpoint) use
// this; everything else should prefer the typed constructors, which
// catch shape mistakes at compile time.
func NewJob(kind TaskType, args TaskArgs) *Job {
	return newJob(kind, args)
}

// NewRunScriptJob builds a Job that runs a scientific binary under
// `script`, formatting the node count with ncpuFmt and passing
// cmdLineArgs through verbatim. Mirrors the `run_script` shape in
// spec.md §6.
func NewRunScriptJob(script, ncpuFmt string, cmdLineArgs map[string]any) *Job {
	return newJob(TaskRunScript, TaskArgs{
		"script":        script,
		"ncpu_fmt":      ncpuFmt,
		"cmd_line_args": cmdLineArgs,
	})
}

// NewCopyJob builds a Job that copies a file from src to dest.
func NewCopyJob(src, dest string) *Job {
	return newJob(TaskCopy, TaskArgs{
		"src":  src,
		"dest": dest,
	})
}

// NewSpawnJob builds a Job that requests a new taxi process.
func NewSpawnJob(taxiName, taxiDir string, taxiNodes int, taxiTime int64) *Job {
	return newJob(TaskSpawn, TaskArgs{
		"taxi_name":  taxiName,
		"taxi_dir":   taxiDir,
		"taxi_nodes": taxiNodes,
		"taxi_time":  taxiTime,
	})
}

// NewRespawnJob builds a recurring Job that asks a taxi to respawn
// itself once its wall-clock budget nears expiry. Always recurring.
func NewRespawnJob() *Job {
	j := newJob(TaskRespawn, TaskArgs{})
	j.IsRecurring = true
	return j
}

// WithDependsOn records dependency jobs. Jobs in deps must belong to
// the same pool passed to initialize_new_job_pool, or compilation
// fails with DanglingDependencyError.
func (j *Job) WithDependsOn(deps ...*Job) *Job {
	j.DependsOn = append(j.DependsOn, deps...)
	return j
}

// WithTrunk marks the job as lying on a stream's main path; forks in
// the forest happen at trunk jobs (spec.md §4.2).
func (j *Job) WithTrunk(trunk bool) *Job {
	j.Trunk = trunk
	return j
}

// WithPriority records a user-supplied priority override. Positive
// user priorities are never overwritten by automatic assignment
// (spec.md §4.3).
func (j *Job) WithPriority(p int) *Job {
	j.Priority = p
	return j
}

// WithReqTime sets the estimated number of seconds this job will take
// to run.
func (j *Job) WithReqTime(seconds int64) *Job {
	j.ReqTime = seconds
	return j
}

// WithForTaxi restricts this job to only ever be claimed by the named
// taxi.
func (j *Job) WithForTaxi(taxiName string) *Job {
	j.ForTaxi = &taxiName
	return j
}

// compile translates the Job's finalized state into a Task record.
// It is a pure, idempotent function of that state: calling it twice
// returns equivalent Tasks. pool is the set of Jobs that were part of
// the same initialize_new_job_pool call, used to reject dependencies
// that point outside of it. index is this job's position in that pool,
// carried only so error values can report which job failed.
func (j *Job) compile(index int, pool map[*Job]bool) (*Task, error) {
	if j.id == 0 {
		return nil, &CompilationPreconditionError{JobIndex: index}
	}

	dependsOn := make([]int64, 0, len(j.DependsOn))
	for _, dep := range j.DependsOn {
		if !pool[dep] {
			return nil, &DanglingDependencyError{JobIndex: index}
		}
		if dep.id == 0 {
			return nil, &CompilationPreconditionError{JobIndex: index}
		}
		dependsOn = append(dependsOn, dep.id)
	}

	task := &Task{
		ID:          j.id,
		TaskType:    j.Kind,
		TaskArgs:    j.Args,
		DependsOn:   dependsOn,
		Status:      j.Status,
		ForTaxi:     j.ForTaxi,
		IsRecurring: j.IsRecurring,
		ReqTime:     j.ReqTime,
		StartTime:   -1,
		RunTime:     -1,
		Priority:    j.Priority,
	}
	j.compiled = task
	return task, nil
}
