// Package postgres is the networked taxi task-store backend, for
// fleets of taxis spread across multiple hosts sharing one store.
// Grounded on store/db/postgres/*.go's lib/pq, parameterized-query,
// and errors.Wrap idiom from the teacher repo. Claim uses
// SELECT ... FOR UPDATE inside a transaction to get the same
// pending->active compare-and-set atomicity SQLite gets for free from
// its single-writer-connection discipline.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/task"
)

type DB struct {
	db *sql.DB
}

func Open(dsn string) (store.Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres: open")
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id           BIGINT PRIMARY KEY,
	task_type    TEXT NOT NULL,
	task_args    JSONB NOT NULL,
	depends_on   JSONB NOT NULL,
	status       TEXT NOT NULL,
	for_taxi     TEXT,
	by_taxi      TEXT,
	is_recurring BOOLEAN NOT NULL,
	req_time     BIGINT NOT NULL,
	start_time   DOUBLE PRECISION NOT NULL,
	run_time     DOUBLE PRECISION NOT NULL,
	priority     INTEGER NOT NULL
)`
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return &store.StoreIOError{Op: "ensure_schema", Cause: err}
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_tasks_for_taxi_status ON tasks(for_taxi, status)`
	if _, err := d.db.ExecContext(ctx, idx); err != nil {
		return &store.StoreIOError{Op: "ensure_schema", Cause: err}
	}
	return nil
}

func (d *DB) Insert(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.StoreIOError{Op: "insert", Cause: err}
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO tasks
	(id, task_type, task_args, depends_on, status, for_taxi, by_taxi,
	 is_recurring, req_time, start_time, run_time, priority)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	task_type = EXCLUDED.task_type,
	task_args = EXCLUDED.task_args,
	depends_on = EXCLUDED.depends_on,
	status = EXCLUDED.status,
	for_taxi = EXCLUDED.for_taxi,
	by_taxi = EXCLUDED.by_taxi,
	is_recurring = EXCLUDED.is_recurring,
	req_time = EXCLUDED.req_time,
	start_time = EXCLUDED.start_time,
	run_time = EXCLUDED.run_time,
	priority = EXCLUDED.priority`

	for _, t := range tasks {
		argsJSON, err := json.Marshal(t.TaskArgs)
		if err != nil {
			return errors.Wrapf(err, "insert: marshal task_args for task %d", t.ID)
		}
		depsJSON, err := json.Marshal(t.DependsOn)
		if err != nil {
			return errors.Wrapf(err, "insert: marshal depends_on for task %d", t.ID)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			t.ID, string(t.TaskType), argsJSON, depsJSON, string(t.Status),
			t.ForTaxi, t.ByTaxi, t.IsRecurring, t.ReqTime,
			t.StartTime, t.RunTime, t.Priority,
		); err != nil {
			return &store.StoreIOError{Op: "insert", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &store.StoreIOError{Op: "insert", Cause: err}
	}
	return nil
}

func (d *DB) GetMaxID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	err := d.db.QueryRowContext(ctx, "SELECT MAX(id) FROM tasks").Scan(&maxID)
	if err != nil {
		return 0, &store.StoreIOError{Op: "get_max_id", Cause: err}
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

func (d *DB) GetBlob(ctx context.Context, taxiName string, includeComplete bool) (map[int64]*task.Task, error) {
	query := "SELECT id, task_type, task_args, depends_on, status, for_taxi, by_taxi, is_recurring, req_time, start_time, run_time, priority FROM tasks WHERE "
	var args []any
	if taxiName == "" {
		query += "for_taxi IS NULL"
	} else {
		query += "(for_taxi = $1 OR for_taxi IS NULL)"
		args = append(args, taxiName)
	}
	if !includeComplete {
		args = append(args, string(task.StatusComplete))
		query += fmt.Sprintf(" AND status != $%d", len(args))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &store.StoreIOError{Op: "get_blob", Cause: err}
	}
	defer rows.Close()

	blob := make(map[int64]*task.Task)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &store.StoreIOError{Op: "get_blob", Cause: err}
		}
		blob[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StoreIOError{Op: "get_blob", Cause: err}
	}
	return blob, nil
}

func (d *DB) CheckStatus(ctx context.Context, taskID int64) (task.TaskStatus, error) {
	var status string
	err := d.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = $1", taskID).Scan(&status)
	if err != nil {
		return "", &store.StoreIOError{Op: "check_status", Cause: err}
	}
	return task.TaskStatus(status), nil
}

func (d *DB) Update(ctx context.Context, t *task.Task) error {
	const stmt = `
UPDATE tasks SET status = $1, by_taxi = $2, start_time = $3, run_time = $4, priority = $5
WHERE id = $6`
	res, err := d.db.ExecContext(ctx, stmt, string(t.Status), t.ByTaxi, t.StartTime, t.RunTime, t.Priority, t.ID)
	if err != nil {
		return &store.StoreIOError{Op: "update", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &store.StoreIOError{Op: "update", Cause: errors.Errorf("no task with id %d", t.ID)}
	}
	return nil
}

// Claim locks the candidate row with SELECT ... FOR UPDATE before
// checking status, so a concurrent claim from another connection
// blocks on the row lock rather than racing the read.
func (d *DB) Claim(ctx context.Context, taskID int64, byTaxi string) (*task.Task, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = $1 FOR UPDATE", taskID).Scan(&status)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	if task.TaskStatus(status) != task.StatusPending {
		return nil, &store.ClaimContention{TaskID: taskID}
	}

	startTime := float64(time.Now().UnixNano()) / 1e9
	if _, err := tx.ExecContext(ctx,
		"UPDATE tasks SET status = $1, by_taxi = $2, start_time = $3 WHERE id = $4",
		string(task.StatusActive), byTaxi, startTime, taskID,
	); err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}

	row := tx.QueryRowContext(ctx,
		"SELECT id, task_type, task_args, depends_on, status, for_taxi, by_taxi, is_recurring, req_time, start_time, run_time, priority FROM tasks WHERE id = $1",
		taskID)
	t, err := scanTask(row)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t                  task.Task
		taskType, status   string
		argsJSON, depsJSON []byte
		forTaxi, byTaxi    sql.NullString
	)
	if err := row.Scan(
		&t.ID, &taskType, &argsJSON, &depsJSON, &status, &forTaxi, &byTaxi,
		&t.IsRecurring, &t.ReqTime, &t.StartTime, &t.RunTime, &t.Priority,
	); err != nil {
		return nil, err
	}

	t.TaskType = task.TaskType(taskType)
	t.Status = task.TaskStatus(status)
	if forTaxi.Valid {
		t.ForTaxi = &forTaxi.String
	}
	if byTaxi.Valid {
		t.ByTaxi = &byTaxi.String
	}
	if err := json.Unmarshal(argsJSON, &t.TaskArgs); err != nil {
		return nil, errors.Wrap(err, "unmarshal task_args")
	}
	if err := json.Unmarshal(depsJSON, &t.DependsOn); err != nil {
		return nil, errors.Wrap(err, "unmarshal depends_on")
	}
	return &t, nil
}
