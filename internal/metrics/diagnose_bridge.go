package metrics

import (
	"time"

	"github.com/falconqueue/taskcore/internal/diagnose"
)

// BridgeDiagnostics wires a diagnostics Registry's task lifecycle callbacks
// into c's executor_tasks_* gauges/counters, so every task bound to any
// threading.Executor (or the job queue's own worker.Pool, which reports
// through the same registry) shows up in Prometheus without the controller
// or worker pool calling into metrics directly.
func BridgeDiagnostics(c *Collector, r *diagnose.Registry) {
	r.SetTaskRunningStateCallback(func(executorName string, threadID int, threadName, taskName string, prevElapsed time.Duration) {
		c.tasksRunning.Inc()
	})
	r.SetTaskFinishedStateCallback(func(executorName string, threadID int, threadName, taskName string, prevElapsed time.Duration) {
		c.tasksRunning.Dec()
		c.tasksFinished.Inc()
	})
	r.SetTaskExceptionStateCallback(func(executorName string, threadID int, threadName, taskName, msg string) {
		c.tasksRunning.Dec()
		c.tasksAbnormal.Inc()
	})
}
