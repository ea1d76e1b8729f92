// Package store defines the persistence contract for taxi tasks
// (spec.md §4.4): open/close a backend, ensure its schema, insert
// compiled tasks, read the id watermark and a scoped snapshot, and
// atomically claim a task for a taxi. internal/store/sqlite and
// internal/store/postgres are its two implementations; internal/
// dispatcher depends only on this interface.
package store

import (
	"context"

	"github.com/erinaldi/taxi/internal/task"
)

// Store is the contract every task-store backend satisfies. Every
// method may return a *StoreIOError wrapping the underlying driver
// error; Claim additionally returns *ClaimContention when another
// taxi won the race.
type Store interface {
	// EnsureSchema creates the tasks table and any supporting indexes
	// if they do not already exist. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Insert persists a freshly compiled batch of tasks, replacing any
	// existing row with the same id. Tasks must already carry ids
	// (initialize_new_job_pool assigns them before calling Insert).
	Insert(ctx context.Context, tasks []*task.Task) error

	// GetMaxID returns the highest task id currently stored, or 0 if
	// the store is empty. initialize_new_job_pool starts its next
	// batch of ids at GetMaxID()+1.
	GetMaxID(ctx context.Context) (int64, error)

	// GetBlob returns every task with for_taxi = taxiName OR for_taxi
	// IS NULL. If taxiName is empty, only for_taxi IS NULL rows come
	// back. Unless includeComplete, rows with status=complete are
	// dropped. This is the snapshot the selection protocol (C5) walks
	// in memory to resolve dependencies and pick a candidate before
	// attempting to claim it.
	GetBlob(ctx context.Context, taxiName string, includeComplete bool) (map[int64]*task.Task, error)

	// CheckStatus re-reads a single task's status. The completion
	// protocol (C6) does not call it: FinalizeTaskRun writes its
	// update without re-checking the current status first.
	CheckStatus(ctx context.Context, taskID int64) (task.TaskStatus, error)

	// Update persists status plus the optional start_time/run_time/
	// by_taxi fields and the priority already set on t. It does not change t's id,
	// task_type, task_args, or depends_on.
	Update(ctx context.Context, t *task.Task) error

	// Claim atomically transitions a pending task to active and
	// assigns byTaxi, returning the updated row. It returns
	// *ClaimContention if the task was no longer pending by the time
	// the claim was attempted — the caller should pick another
	// candidate rather than retry the same task.
	Claim(ctx context.Context, taskID int64, byTaxi string) (*task.Task, error)

	Close() error
}
