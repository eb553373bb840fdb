package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/metrics"
)

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "x", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "fifoexport"},
		{name: "explicit job name is preserved", jobName: "nightly", gatewayURL: "http://pushgateway:9091", wantJobName: "nightly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobName, b.jobName)
			assert.Equal(t, tt.gatewayURL, b.gatewayURL)
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "stream", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "written"})
	b.IncCounter(metrics.BytesTotal, 2, nil)
	b.IncCounter(metrics.BytesTotal, 0.5, nil)
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 3.0, testutil.ToFloat64(b.stepCounter.WithLabelValues("stream", "success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(b.recordCounter.WithLabelValues("written")))
	assert.Equal(t, 2.5, testutil.ToFloat64(b.byteCounter))
}

func TestNilCollectorsAreSafe(t *testing.T) {
	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "ok"})
		b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "written"})
		b.IncCounter(metrics.BytesTotal, 1, nil)
		b.ObserveHistogram(metrics.StepDuration, 1, nil)
	})
}

func TestObserveHistogram(t *testing.T) {
	b, err := NewBackend("job", "http://example.com")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "join", "status": "success"})
	b.ObserveHistogram("other", 2, metrics.Labels{"step": "join", "status": "success"})

	assert.Equal(t, 1, testutil.CollectAndCount(b.stepDuration))
}

func TestFlush(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- r.Method + " " + r.URL.Path + " " + string(body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("fx", server.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "connect", "status": "success"})

	require.NoError(t, b.Flush())
	req := <-got
	assert.Contains(t, req, "/metrics/job/fx")
	assert.NotEmpty(t, req)
}
