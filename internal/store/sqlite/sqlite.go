// Package sqlite is the default taxi task-store backend: a single
// SQLite file, WAL journal mode, one serialized writer connection.
// Grounded on store/db/sqlite/sqlite.go's pragma block and connection
// pool sizing from the teacher repo, adapted to a CGO-free driver
// (modernc.org/sqlite) since this store has no need for the teacher's
// sqlite-vec extension.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/task"
)

type DB struct {
	db *sql.DB
}

// Open connects to the SQLite file at dsn with the pragmas the store
// contract needs (§4.4): foreign keys on, WAL journal mode, a bounded
// busy timeout. A single connection is kept open; SQLite serializes
// writers at the file level regardless, so pooling more connections
// only adds lock-contention overhead.
func Open(dsn string) (store.Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite: dsn required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: open %s", dsn)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "sqlite: set pragma %q", pragma)
		}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id           INTEGER PRIMARY KEY,
	task_type    TEXT NOT NULL,
	task_args    TEXT NOT NULL,
	depends_on   TEXT NOT NULL,
	status       TEXT NOT NULL,
	for_taxi     TEXT,
	by_taxi      TEXT,
	is_recurring INTEGER NOT NULL,
	req_time     INTEGER NOT NULL,
	start_time   REAL NOT NULL,
	run_time     REAL NOT NULL,
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
INSERT OR REPLACE INTO tasks
	(id, task_type, task_args, depends_on, status, for_taxi, by_taxi,
	 is_recurring, req_time, start_time, run_time, priority)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, t := range tasks {
		args, deps, err := encode(t)
		if err != nil {
			return errors.Wrapf(err, "insert: task %d", t.ID)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			t.ID, string(t.TaskType), args, deps, string(t.Status),
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
		query += "(for_taxi = ? OR for_taxi IS NULL)"
		args = append(args, taxiName)
	}
	if !includeComplete {
		query += " AND status != ?"
		args = append(args, string(task.StatusComplete))
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
	err := d.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", taskID).Scan(&status)
	if err != nil {
		return "", &store.StoreIOError{Op: "check_status", Cause: err}
	}
	return task.TaskStatus(status), nil
}

func (d *DB) Update(ctx context.Context, t *task.Task) error {
	const stmt = `
UPDATE tasks SET status = ?, by_taxi = ?, start_time = ?, run_time = ?, priority = ?
WHERE id = ?`
	res, err := d.db.ExecContext(ctx, stmt, string(t.Status), t.ByTaxi, t.StartTime, t.RunTime, t.Priority, t.ID)
	if err != nil {
		return &store.StoreIOError{Op: "update", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &store.StoreIOError{Op: "update", Cause: errors.Errorf("no task with id %d", t.ID)}
	}
	return nil
}

// Claim performs the compare-and-set transition pending -> active
// inside a transaction. SQLite's single-writer-connection discipline
// (one open connection, WAL mode) already serializes this against any
// concurrent claim from the same process; across processes, SQLite's
// own file locking backs the same guarantee.
func (d *DB) Claim(ctx context.Context, taskID int64, byTaxi string) (*task.Task, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", taskID).Scan(&status)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	if task.TaskStatus(status) != task.StatusPending {
		return nil, &store.ClaimContention{TaskID: taskID}
	}

	startTime := float64(time.Now().UnixNano()) / 1e9
	if _, err := tx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, by_taxi = ?, start_time = ? WHERE id = ? AND status = ?",
		string(task.StatusActive), byTaxi, startTime, taskID, string(task.StatusPending),
	); err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}

	row := tx.QueryRowContext(ctx,
		"SELECT id, task_type, task_args, depends_on, status, for_taxi, by_taxi, is_recurring, req_time, start_time, run_time, priority FROM tasks WHERE id = ?",
		taskID)
	t, err := scanTask(row)
	if err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &store.StoreIOError{Op: "claim", Cause: err}
	}
	slog.Debug("task claimed", "task_id", taskID, "by_taxi", byTaxi)
	return t, nil
}

func encode(t *task.Task) (taskArgs, dependsOn string, err error) {
	argsJSON, err := json.Marshal(t.TaskArgs)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal task_args")
	}
	depsJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal depends_on")
	}
	return string(argsJSON), string(depsJSON), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t                  task.Task
		taskType, status   string
		argsJSON, depsJSON string
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
	if err := json.Unmarshal([]byte(argsJSON), &t.TaskArgs); err != nil {
		return nil, errors.Wrap(err, "unmarshal task_args")
	}
	if err := json.Unmarshal([]byte(depsJSON), &t.DependsOn); err != nil {
		return nil, errors.Wrap(err, "unmarshal depends_on")
	}
	return &t, nil
}
