// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from export attempts.
//
//   - Backend is a narrow interface focused on counters and timings.
//   - A global, pluggable backend defaults to a no-op, so metrics are always
//     safe to call even when nothing is configured.
//   - Concrete systems (Prometheus Pushgateway, Datadog) live in subpackages so
//     the export core never imports them.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal    = "fifoexport_step_total"
	StepDuration = "fifoexport_step_duration_seconds"
	RecordsTotal = "fifoexport_records_total"
	BytesTotal   = "fifoexport_bytes_total"
)

// Steps of one export attempt.
const (
	StepCreatePipe = "create_pipe"
	StepConnect    = "connect"
	StepOpenWrite  = "open_write"
	StepStream     = "stream"
	StepJoin       = "join"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

// RecordStep records latency and success/failure of one attempt step.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments the record counter for kind ("written", "loaded").
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBytes increments the counter of bytes written into pipes.
func RecordBytes(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BytesTotal, float64(delta), Labels{"job": job})
}
