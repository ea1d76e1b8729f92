// Package dispatcher is the taxi workflow dispatcher's passive
// orchestrator (spec.md §5: "a passive object; its methods are
// invoked by the taxi process that needs to select or finalize a
// task"). It ties the store-free task/job/forest model in
// internal/task to a internal/store.Store backend: initialize_new_job_pool,
// the selection protocol (C5), and the completion protocol (C6).
package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/erinaldi/taxi/internal/metrics"
	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/task"
	"github.com/erinaldi/taxi/internal/taxi"
)

// maxClaimRetries bounds how many times selectOnce may restart after
// losing a claim race before the selection protocol falls through to
// a sleep pseudo-task (spec.md §4.5 step 6).
const maxClaimRetries = 5

// Dispatcher is the entry point for both the initialization boundary
// (§6) and the per-taxi selection/completion protocols (§4.5, §4.6).
// One Dispatcher per store connection; distinct taxi processes each
// hold their own (spec.md §5).
type Dispatcher struct {
	Store  store.Store
	Logger *slog.Logger
}

func New(s store.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Store: s, Logger: logger}
}

// InitializeNewJobPool is the boundary of spec.md §6: users never
// manipulate Task records directly. It assigns ids starting at
// get_max_id()+1, builds the dependency forest, assigns priorities,
// compiles every job, and bulk-inserts the result. An empty jobPool
// is a no-op (spec.md §8 boundary behavior).
func (d *Dispatcher) InitializeNewJobPool(ctx context.Context, jobPool []*task.Job, policy task.PriorityPolicy) ([]*task.Task, error) {
	if len(jobPool) == 0 {
		return nil, nil
	}

	maxID, err := d.Store.GetMaxID(ctx)
	if err != nil {
		metrics.JobPoolsInitialized.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "initialize_new_job_pool")
	}
	task.AssignIDs(jobPool, maxID+1)

	tasks, err := task.CompilePool(jobPool, policy)
	if err != nil {
		metrics.JobPoolsInitialized.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := d.Store.Insert(ctx, tasks); err != nil {
		metrics.JobPoolsInitialized.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "initialize_new_job_pool")
	}

	metrics.JobPoolsInitialized.WithLabelValues("ok").Inc()
	d.Logger.Info("job pool initialized", "job_count", len(jobPool), "policy", policy)
	return tasks, nil
}

// GetTaskToRun implements the selection protocol (C5, spec.md §4.5).
// On repeated ClaimContention it restarts from step 1, up to
// maxClaimRetries times, then falls through to a sleep pseudo-task
// (step 6).
func (d *Dispatcher) GetTaskToRun(ctx context.Context, tx *taxi.Taxi) (*task.Task, error) {
	start := time.Now()
	defer func() { metrics.SelectionDuration.Observe(time.Since(start).Seconds()) }()

	for retries := 0; ; retries++ {
		t, outcome, err := d.selectOnce(ctx, tx)
		if err != nil {
			var contention *store.ClaimContention
			if errors.As(err, &contention) {
				metrics.SelectionsTotal.WithLabelValues(metrics.OutcomeClaimContention).Inc()
				if retries >= maxClaimRetries {
					metrics.ClaimRetries.Observe(float64(retries))
					d.Logger.Warn("claim contention exceeded retry budget, falling back to sleep",
						"taxi", tx.Name, "retries", retries)
					t, err := d.insertTerminal(ctx, task.NewSleepTask())
					if err != nil {
						return nil, err
					}
					metrics.SelectionsTotal.WithLabelValues(metrics.OutcomeSleep).Inc()
					return t, nil
				}
				continue
			}
			return nil, err
		}
		metrics.ClaimRetries.Observe(float64(retries))
		metrics.SelectionsTotal.WithLabelValues(outcome).Inc()
		return t, nil
	}
}

// selectOnce runs steps 1-6 of spec.md §4.5 a single time, without
// retrying on claim contention — the caller (GetTaskToRun) owns the
// retry loop and the bounded fallback to sleep.
func (d *Dispatcher) selectOnce(ctx context.Context, tx *taxi.Taxi) (*task.Task, string, error) {
	blob, err := d.Store.GetBlob(ctx, tx.Name, false)
	if err != nil {
		return nil, "", err
	}

	if len(blob) == 0 {
		t, err := d.insertTerminal(ctx, task.NewDieTask())
		return t, metrics.OutcomeDie, err
	}

	candidates := make([]*task.Task, 0, len(blob))
	for _, t := range blob {
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if c := task.ComparePriority(candidates[i].Priority, candidates[j].Priority); c != 0 {
			return c < 0
		}
		return candidates[i].ID < candidates[j].ID
	})

	now := time.Now()
	pendingCount := 0
	var selected *task.Task
	for _, t := range candidates {
		if t.Status != task.StatusPending {
			continue
		}
		pendingCount++

		if countUnresolvedDependencies(t, blob) != 0 {
			continue
		}
		if tx.RemainingTime(now) <= float64(t.ReqTime) {
			continue
		}
		selected = t
		break
	}

	if selected == nil {
		if pendingCount == 0 {
			t, err := d.insertTerminal(ctx, task.NewDieTask())
			return t, metrics.OutcomeDie, err
		}
		t, err := d.insertTerminal(ctx, task.NewSleepTask())
		return t, metrics.OutcomeSleep, err
	}

	claimed, err := d.Store.Claim(ctx, selected.ID, tx.Name)
	if err != nil {
		return nil, "", err
	}
	return claimed, metrics.OutcomeSelected, nil
}

// countUnresolvedDependencies counts dependencies of t that are not
// complete as of blob. A dependency id absent from blob counts as
// resolved (it was already complete and get_blob excludes complete
// rows by default, per spec.md §4.4). A failed dependency counts as
// unresolved — preserved per spec.md §4.5's dependency failure policy
// and §9's open question: descendants of a failed task never run.
func countUnresolvedDependencies(t *task.Task, blob map[int64]*task.Task) int {
	unresolved := 0
	for _, depID := range t.DependsOn {
		dep, ok := blob[depID]
		if !ok {
			continue
		}
		if dep.Status != task.StatusComplete {
			unresolved++
		}
	}
	return unresolved
}

// insertTerminal persists a synthetic sleep/die pseudo-task as a real
// row, doubling as an audit log of worker terminations (spec.md §9
// "Synthetic tasks are persisted").
func (d *Dispatcher) insertTerminal(ctx context.Context, t *task.Task) (*task.Task, error) {
	maxID, err := d.Store.GetMaxID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "insert terminal task")
	}
	t.ID = maxID + 1
	if err := d.Store.Insert(ctx, []*task.Task{t}); err != nil {
		return nil, errors.Wrap(err, "insert terminal task")
	}
	d.Logger.Debug("terminal task inserted", "task_id", t.ID, "task_type", t.TaskType)
	return t, nil
}

// FinalizeTaskRun implements the completion protocol (C6, spec.md
// §4.6): a single update carrying status, start_time, run_time, and
// by_taxi.
func (d *Dispatcher) FinalizeTaskRun(ctx context.Context, tx *taxi.Taxi, t *task.Task, failed bool) error {
	t.RunTime = tx.TaskFinishTime.Sub(tx.TaskStartTime).Seconds()
	t.ByTaxi = &tx.Name

	switch {
	case failed:
		t.Status = task.StatusFailed
	case t.IsRecurring:
		t.Status = task.StatusPending
	default:
		t.Status = task.StatusComplete
	}

	if err := d.Store.Update(ctx, t); err != nil {
		return errors.Wrapf(err, "finalize_task_run: task %d", t.ID)
	}
	d.Logger.Info("task finalized", "task_id", t.ID, "status", t.Status, "taxi", tx.Name, "failed", failed)
	return nil
}
