// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Export attempts are short-lived batch jobs, so collectors live in a private
// registry that is pushed to a Pushgateway on Flush instead of being scraped.
// The Pushgateway "job" grouping key carries the job name; the remaining
// labels (step, status, kind) become Prometheus labels.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"fifoexport/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // fifoexport_step_total
	stepDuration  *prometheus.SummaryVec // fifoexport_step_duration_seconds
	recordCounter *prometheus.CounterVec // fifoexport_records_total
	byteCounter   prometheus.Counter     // fifoexport_bytes_total
}

// NewBackend constructs a Pushgateway backend. An empty jobName defaults to
// "fifoexport".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "fifoexport"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Export attempt steps, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of export attempt steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records written into pipes and reported loaded by the warehouse.",
		},
		[]string{"kind"},
	)
	byteCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metrics.BytesTotal,
			Help: "Encoded bytes written into pipes.",
		},
	)

	for name, c := range map[string]prometheus.Collector{
		"step counter":   stepCounter,
		"step summary":   stepDuration,
		"record counter": recordCounter,
		"byte counter":   byteCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stepCounter:   stepCounter,
		stepDuration:  stepDuration,
		recordCounter: recordCounter,
		byteCounter:   byteCounter,
	}, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BytesTotal:
		if b.byteCounter == nil {
			return
		}
		b.byteCounter.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
