// Package task is the store-free domain model of the taxi dispatcher:
// the Task/Job record shapes, dependency forest construction, and
// priority assignment (spec.md §3, §4.1-§4.3). It never talks to a
// store or executes a task; internal/store and internal/dispatcher
// build on top of it.
package task

// TaskType discriminates the kind of work a task represents. The last
// two values are synthetic and only ever produced by the dispatcher
// itself (see NewSleepTask/NewDieTask), never by user jobs.
type TaskType string

const (
	TaskRunScript TaskType = "run_script"
	TaskCopy      TaskType = "copy"
	TaskSpawn     TaskType = "spawn"
	TaskRespawn   TaskType = "respawn"
	TaskSleep     TaskType = "sleep"
	TaskDie       TaskType = "die"
)

// TaskStatus is the lifecycle state of a persisted task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusActive    TaskStatus = "active"
	StatusComplete  TaskStatus = "complete"
	StatusFailed    TaskStatus = "failed"
	StatusRecurring TaskStatus = "recurring"
)

// TaskArgs is the opaque, structured payload carried by a task. The
// dispatcher never interprets it; it only serializes and ferries it
// through the store. Keys follow the shapes in spec.md §6.
type TaskArgs map[string]any

// Task is the unit of work persisted by the store. Field names mirror
// the §3 schema directly so that store implementations can serialize
// them with minimal translation.
type Task struct {
	ID          int64
	TaskType    TaskType
	TaskArgs    TaskArgs
	DependsOn   []int64
	Status      TaskStatus
	ForTaxi     *string
	ByTaxi      *string
	IsRecurring bool
	ReqTime     int64
	StartTime   float64 // seconds since epoch, -1 until set
	RunTime     float64 // elapsed seconds, -1 until set
	Priority    int
}

// NewSleepTask and NewDieTask build the synthetic terminal pseudo-tasks
// the selection protocol hands back when a taxi has nothing runnable.
// Per invariant 5 they always carry priority 0 (highest) and are
// inserted into the store as real rows (§9 Design Notes: "synthetic
// tasks are persisted").

func newTerminalTask(t TaskType) *Task {
	return &Task{
		TaskType:  t,
		TaskArgs:  TaskArgs{},
		DependsOn: nil,
		Status:    StatusPending,
		Priority:  0,
		ReqTime:   0,
		StartTime: -1,
		RunTime:   -1,
	}
}

// NewSleepTask builds a `sleep` pseudo-task: tasks are pending but none
// is runnable right now (blocked on dependencies or insufficient time).
func NewSleepTask() *Task { return newTerminalTask(TaskSleep) }

// NewDieTask builds a `die` pseudo-task: the taxi's blob has no pending
// tasks left (it is empty, or holds only non-pending tasks).
func NewDieTask() *Task { return newTerminalTask(TaskDie) }
