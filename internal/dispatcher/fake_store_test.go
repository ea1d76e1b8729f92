package dispatcher

import (
	"context"
	"sync"

	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/task"
)

// fakeStore is an in-memory store.Store used to exercise the dispatcher
// without a real SQL backend. claimAlwaysContends forces every Claim
// call to report contention, used to drive the retry/fallback path in
// GetTaskToRun.
type fakeStore struct {
	mu                  sync.Mutex
	tasks               map[int64]*task.Task
	claimAlwaysContends bool
	claimAttempts       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[int64]*task.Task)}
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeStore) Insert(ctx context.Context, tasks []*task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		cp := *t
		f.tasks[t.ID] = &cp
	}
	return nil
}

func (f *fakeStore) GetMaxID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for id := range f.tasks {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeStore) GetBlob(ctx context.Context, taxiName string, includeComplete bool) (map[int64]*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob := make(map[int64]*task.Task)
	for id, t := range f.tasks {
		if t.ForTaxi != nil && *t.ForTaxi != taxiName {
			continue
		}
		if !includeComplete && t.Status == task.StatusComplete {
			continue
		}
		cp := *t
		blob[id] = &cp
	}
	return blob, nil
}

func (f *fakeStore) CheckStatus(ctx context.Context, taskID int64) (task.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return "", &store.StoreIOError{Op: "check_status"}
	}
	return t.Status, nil
}

func (f *fakeStore) Update(ctx context.Context, t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; !ok {
		return &store.StoreIOError{Op: "update"}
	}
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeStore) Claim(ctx context.Context, taskID int64, byTaxi string) (*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimAttempts++

	if f.claimAlwaysContends {
		return nil, &store.ClaimContention{TaskID: taskID}
	}

	t, ok := f.tasks[taskID]
	if !ok || t.Status != task.StatusPending {
		return nil, &store.ClaimContention{TaskID: taskID}
	}
	t.Status = task.StatusActive
	t.ByTaxi = &byTaxi
	t.StartTime = 1
	cp := *t
	return &cp, nil
}

func (f *fakeStore) Close() error { return nil }
