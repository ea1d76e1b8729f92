// Package taxi models the dispatcher's external collaborator: the
// worker process that asks for tasks, runs them, and reports back
// (spec.md §3, §6). Grounded on original_source/taxi.py's Taxi class,
// generalized to the Go envelope; ExecuteTask is a caller-supplied
// function since the scientific binaries it would invoke are out of
// scope (spec.md §1 Non-goals).
package taxi

import (
	"time"

	"github.com/google/uuid"

	"github.com/erinaldi/taxi/internal/task"
)

// ExecuteTask runs a claimed task and reports whether it failed. The
// dispatcher never calls this itself; it is invoked by whatever
// process embeds this package (spec.md §1: execution is out of
// scope).
type ExecuteTask func(t *task.Task) (failed bool)

// Taxi is the minimal collaborator the selection and completion
// protocols need (spec.md §3, §6).
type Taxi struct {
	// InstanceID disambiguates two taxis that happen to share a Name
	// (e.g. after a respawn); it plays no role in task claiming, which
	// is keyed on Name alone per the store contract.
	InstanceID uuid.UUID

	Name     string
	PoolName string
	// TimeLimit is the taxi's total wall-clock budget, in seconds.
	TimeLimit int64
	StartTime time.Time

	// TaskStartTime and TaskFinishTime are stamped by the taxi around
	// ExecuteTask, then read by the completion protocol (C6) to
	// compute run_time.
	TaskStartTime  time.Time
	TaskFinishTime time.Time

	Execute ExecuteTask
}

// New builds a Taxi with a fresh instance id and start time set to
// now.
func New(name, poolName string, timeLimit int64, execute ExecuteTask) *Taxi {
	return &Taxi{
		InstanceID: uuid.New(),
		Name:       name,
		PoolName:   poolName,
		TimeLimit:  timeLimit,
		StartTime:  time.Now(),
		Execute:    execute,
	}
}

// RemainingTime is the wall-clock budget left, in seconds, as of now.
// Used by the selection protocol's sufficient_time check (spec.md
// §4.5).
func (t *Taxi) RemainingTime(now time.Time) float64 {
	elapsed := now.Sub(t.StartTime).Seconds()
	return float64(t.TimeLimit) - elapsed
}

// Run executes t via the taxi's ExecuteTask, stamping start/finish
// times around the call.
func (tx *Taxi) Run(t *task.Task) (failed bool) {
	tx.TaskStartTime = time.Now()
	failed = tx.Execute(t)
	tx.TaskFinishTime = time.Now()
	return failed
}
