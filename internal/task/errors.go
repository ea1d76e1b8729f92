package task

import "fmt"

// Error taxonomy from spec.md §7. Each is fatal for the
// initialize_new_job_pool call that raised it; none modify the store
// (compilation and forest construction run entirely in memory before
// any insert happens).

// CompilationPreconditionError is returned when Job.compile is invoked
// before the job (or one of its dependencies) has been assigned an id.
type CompilationPreconditionError struct {
	JobIndex int
}

func (e *CompilationPreconditionError) Error() string {
	return fmt.Sprintf("job at index %d has no assigned id; compile requires ids to be assigned first", e.JobIndex)
}

// DanglingDependencyError is returned when a Job references a
// dependency that is not a member of the same job pool.
type DanglingDependencyError struct {
	JobIndex int
}

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("job at index %d depends on a job outside its pool", e.JobIndex)
}

// CyclicDependencyError is returned by the forest builder when the
// dependency graph contains a cycle.
type CyclicDependencyError struct {
	Remaining int
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %d job(s) unreachable from any root", e.Remaining)
}

// OrphanJobError is returned when a Job has dependencies but none of
// them are reachable as roots by the forest-building walk.
type OrphanJobError struct {
	JobIndex int
}

func (e *OrphanJobError) Error() string {
	return fmt.Sprintf("job at index %d has dependencies but is unreachable from any root", e.JobIndex)
}

// UnsupportedPolicyError is returned for an unknown priority_method,
// or for the "trunk" stub policy (spec.md §4.3, §9).
type UnsupportedPolicyError struct {
	Policy string
}

func (e *UnsupportedPolicyError) Error() string {
	return fmt.Sprintf("unsupported priority assignment policy: %q", e.Policy)
}

// TypeMismatchError describes a taxi identifier that is neither a
// *taxi.Taxi nor a string. No function in this repository returns it:
// the dispatcher's entry points take a *taxi.Taxi and do not accept a
// bare taxi name.
type TypeMismatchError struct {
	Got any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%v is not a Taxi or taxi name", e.Got)
}
