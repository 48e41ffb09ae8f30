// Package diagnose is the process-wide observer of every executor and task
// transition in the threading subsystem. It mirrors the bind/running/
// finished/exception callback surface of the original C++ Diagnose class,
// trading its static friend-class access for an explicit Registry that the
// threading package pushes events into and anything else (a metrics bridge,
// an admin endpoint) can subscribe to.
package diagnose

import (
	"encoding/json"
	"sync"
	"time"
)

// TaskState mirrors the lifecycle stamps recorded for a bound task.
type TaskState int

const (
	TaskQueuing TaskState = iota
	TaskRunning
	TaskFinished
	TaskAbnormal
)

func (s TaskState) String() string {
	switch s {
	case TaskQueuing:
		return "queuing"
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskAbnormal:
		return "abnormal"
	default:
		return "unknown"
	}
}

// TaskInfo is the point-in-time record kept for a single bound task.
type TaskInfo struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	State        TaskState `json:"state"`
	QueuingAt    time.Time `json:"queuingAt"`
	RunningAt    time.Time `json:"runningAt,omitempty"`
	FinishedAt   time.Time `json:"finishedAt,omitempty"`
	AbnormalAt   time.Time `json:"abnormalAt,omitempty"`
	ExecutorName string    `json:"executorName"`
	ThreadID     int       `json:"threadId,omitempty"`
	ThreadName   string    `json:"threadName,omitempty"`
	ExceptionMsg string    `json:"exceptionMsg,omitempty"`
}

// ExecutorInfo aggregates the tasks currently or recently bound to one
// executor.
type ExecutorInfo struct {
	Name      string               `json:"name"`
	MaxCount  int                  `json:"maxCount"`
	BusyCount int                  `json:"busyCount"`
	Tasks     map[int64]*TaskInfo  `json:"tasks"`
	CreatedAt time.Time            `json:"createdAt"`
}

// Snapshot is the JSON-serializable picture of every registered executor,
// returned by Registry.Snapshot / GetDiagnoseInfo.
type Snapshot struct {
	GeneratedAt time.Time                `json:"generatedAt"`
	Executors   map[string]*ExecutorInfo `json:"executors"`
}

// BindCallback fires when a task is bound to an executor (enters queuing).
type BindCallback func(executorName, taskName string, taskID int64)

// StateCallback fires on a running/finished transition. prevElapsed is the
// duration since the task's previous recorded timestamp (queuing->running or
// running->finished), mirroring the elapsed-time diagnostics the original
// heartbeat/timeout logging relies on.
type StateCallback func(executorName string, threadID int, threadName, taskName string, prevElapsed time.Duration)

// ExceptionCallback fires when a task's run function returns an error or
// panics.
type ExceptionCallback func(executorName string, threadID int, threadName, taskName, msg string)

// Registry is the single process-wide diagnostics sink. All mutation goes
// through one mutex; registered callbacks are always invoked outside the
// lock so a callback calling back into the Registry (or into an executor)
// cannot deadlock.
type Registry struct {
	mu        sync.Mutex
	executors map[string]*ExecutorInfo

	onBind      BindCallback
	onRunning   StateCallback
	onFinished  StateCallback
	onException ExceptionCallback
}

var global = NewRegistry()

// Global returns the process-wide Registry instance. Executors created
// without an explicit Registry use this one, matching the original's
// single static Diagnose surface.
func Global() *Registry { return global }

// NewRegistry builds a standalone Registry. Most callers want Global();
// tests construct their own to avoid cross-test interference.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]*ExecutorInfo)}
}

// SetTaskBindCallback installs the callback invoked whenever a task is
// bound to an executor. Passing nil clears it.
func (r *Registry) SetTaskBindCallback(cb BindCallback) {
	r.mu.Lock()
	r.onBind = cb
	r.mu.Unlock()
}

// SetTaskRunningStateCallback installs the callback invoked when a task
// transitions into the running state.
func (r *Registry) SetTaskRunningStateCallback(cb StateCallback) {
	r.mu.Lock()
	r.onRunning = cb
	r.mu.Unlock()
}

// SetTaskFinishedStateCallback installs the callback invoked when a task
// finishes (success path only; see SetTaskExceptionStateCallback for
// failures).
func (r *Registry) SetTaskFinishedStateCallback(cb StateCallback) {
	r.mu.Lock()
	r.onFinished = cb
	r.mu.Unlock()
}

// SetTaskExceptionStateCallback installs the callback invoked when a task's
// run function returns a non-nil error or recovers from a panic.
func (r *Registry) SetTaskExceptionStateCallback(cb ExceptionCallback) {
	r.mu.Lock()
	r.onException = cb
	r.mu.Unlock()
}

// RegisterExecutor records a newly created executor. maxCount is the
// executor's initial worker/thread budget.
func (r *Registry) RegisterExecutor(name string, maxCount int) {
	r.mu.Lock()
	r.executors[name] = &ExecutorInfo{
		Name:      name,
		MaxCount:  maxCount,
		Tasks:     make(map[int64]*TaskInfo),
		CreatedAt: time.Now(),
	}
	r.mu.Unlock()
}

// UnregisterExecutor drops an executor's diagnostics record when it is
// torn down.
func (r *Registry) UnregisterExecutor(name string) {
	r.mu.Lock()
	delete(r.executors, name)
	r.mu.Unlock()
}

// SetExecutorCounts updates an executor's max/busy counts, e.g. after
// Extend() grows its worker budget.
func (r *Registry) SetExecutorCounts(name string, maxCount, busyCount int) {
	r.mu.Lock()
	if ex, ok := r.executors[name]; ok {
		ex.MaxCount = maxCount
		ex.BusyCount = busyCount
	}
	r.mu.Unlock()
}

// BindTask records a task entering the queuing state on the named
// executor, then fires the bind callback outside the lock.
func (r *Registry) BindTask(executorName string, taskID int64, taskName string) {
	var cb BindCallback
	r.mu.Lock()
	ex, ok := r.executors[executorName]
	if !ok {
		ex = &ExecutorInfo{Name: executorName, Tasks: make(map[int64]*TaskInfo), CreatedAt: time.Now()}
		r.executors[executorName] = ex
	}
	ex.Tasks[taskID] = &TaskInfo{
		ID:           taskID,
		Name:         taskName,
		State:        TaskQueuing,
		QueuingAt:    time.Now(),
		ExecutorName: executorName,
	}
	cb = r.onBind
	r.mu.Unlock()

	if cb != nil {
		cb(executorName, taskName, taskID)
	}
}

// TaskRunning records a task's running transition and fires the running
// callback outside the lock.
func (r *Registry) TaskRunning(executorName string, taskID int64, threadID int, threadName string) {
	var cb StateCallback
	var taskName string
	var elapsed time.Duration

	r.mu.Lock()
	if ex, ok := r.executors[executorName]; ok {
		if t, ok := ex.Tasks[taskID]; ok {
			now := time.Now()
			elapsed = now.Sub(t.QueuingAt)
			t.State = TaskRunning
			t.RunningAt = now
			t.ThreadID = threadID
			t.ThreadName = threadName
			taskName = t.Name
		}
		ex.BusyCount++
	}
	cb = r.onRunning
	r.mu.Unlock()

	if cb != nil && taskName != "" {
		cb(executorName, threadID, threadName, taskName, elapsed)
	}
}

// TaskFinished records a task's successful completion and fires the
// finished callback outside the lock.
func (r *Registry) TaskFinished(executorName string, taskID int64, threadID int, threadName string) {
	var cb StateCallback
	var taskName string
	var elapsed time.Duration

	r.mu.Lock()
	if ex, ok := r.executors[executorName]; ok {
		if t, ok := ex.Tasks[taskID]; ok {
			now := time.Now()
			elapsed = now.Sub(t.RunningAt)
			t.State = TaskFinished
			t.FinishedAt = now
			taskName = t.Name
		}
		if ex.BusyCount > 0 {
			ex.BusyCount--
		}
	}
	cb = r.onFinished
	r.mu.Unlock()

	if cb != nil && taskName != "" {
		cb(executorName, threadID, threadName, taskName, elapsed)
	}
}

// TaskException records a task ending in the abnormal state and fires the
// exception callback outside the lock.
func (r *Registry) TaskException(executorName string, taskID int64, threadID int, threadName, msg string) {
	var cb ExceptionCallback
	var taskName string

	r.mu.Lock()
	if ex, ok := r.executors[executorName]; ok {
		if t, ok := ex.Tasks[taskID]; ok {
			t.State = TaskAbnormal
			t.AbnormalAt = time.Now()
			t.ExceptionMsg = msg
			taskName = t.Name
		}
		if ex.BusyCount > 0 {
			ex.BusyCount--
		}
	}
	cb = r.onException
	r.mu.Unlock()

	if cb != nil && taskName != "" {
		cb(executorName, threadID, threadName, taskName, msg)
	}
}

// Snapshot returns a deep-enough copy of the current diagnostics state,
// safe to serialize without holding the Registry's lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{GeneratedAt: time.Now(), Executors: make(map[string]*ExecutorInfo, len(r.executors))}
	for name, ex := range r.executors {
		tasks := make(map[int64]*TaskInfo, len(ex.Tasks))
		for id, t := range ex.Tasks {
			cp := *t
			tasks[id] = &cp
		}
		snap.Executors[name] = &ExecutorInfo{
			Name:      ex.Name,
			MaxCount:  ex.MaxCount,
			BusyCount: ex.BusyCount,
			Tasks:     tasks,
			CreatedAt: ex.CreatedAt,
		}
	}
	return snap
}

// GetDiagnoseInfo renders the current Snapshot as indented JSON, matching
// the original's single debug-dump entry point.
func (r *Registry) GetDiagnoseInfo() (string, error) {
	b, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
