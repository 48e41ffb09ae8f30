package metrics

import (
	"testing"

	"github.com/falconqueue/taskcore/internal/diagnose"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestBridgeDiagnostics_TaskLifecycle(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()
	registry := diagnose.NewRegistry()

	assert.NotPanics(t, func() {
		BridgeDiagnostics(collector, registry)
	}, "BridgeDiagnostics should not panic")

	registry.RegisterExecutor("test-executor", 4)
	registry.BindTask("test-executor", 1, "job-1")

	assert.NotPanics(t, func() {
		registry.TaskRunning("test-executor", 1, 1, "worker-1")
	}, "TaskRunning callback should not panic")

	assert.Equal(t, float64(1), testGaugeValue(collector.tasksRunning))

	assert.NotPanics(t, func() {
		registry.TaskFinished("test-executor", 1, 1, "worker-1")
	}, "TaskFinished callback should not panic")

	assert.Equal(t, float64(0), testGaugeValue(collector.tasksRunning))
	assert.Equal(t, float64(1), testCounterValue(collector.tasksFinished))
}

func TestBridgeDiagnostics_TaskException(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()
	registry := diagnose.NewRegistry()

	BridgeDiagnostics(collector, registry)

	registry.RegisterExecutor("test-executor", 2)
	registry.BindTask("test-executor", 2, "job-2")
	registry.TaskRunning("test-executor", 2, 1, "worker-1")

	assert.NotPanics(t, func() {
		registry.TaskException("test-executor", 2, 1, "worker-1", "boom")
	}, "TaskException callback should not panic")

	assert.Equal(t, float64(0), testGaugeValue(collector.tasksRunning))
	assert.Equal(t, float64(1), testCounterValue(collector.tasksAbnormal))
}

func testGaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}

func testCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}
