package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig() Config {
	return Config{
		Timeout:      2 * time.Second,
		RetryMax:     3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}
}

func TestSource_Open(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Auth"))
		_, _ = io.WriteString(w, "pcv,typ\n1,M1\n")
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Headers = map[string]string{"X-Auth": "token"}
	rc, err := NewClient(cfg, zaptest.NewLogger(t)).Source(srv.URL).Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pcv,typ\n1,M1\n", string(body))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := NewClient(fastConfig(), nil).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryMax = 1
	_, err := NewClient(cfg, nil).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(fastConfig(), nil).Get(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryMax = 50
	cfg.RetryWaitMin = 50 * time.Millisecond
	cfg.RetryWaitMax = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err := NewClient(cfg, nil).Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_InsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "tls")
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryMax = 0
	_, err := NewClient(cfg, nil).Get(context.Background(), srv.URL)
	require.Error(t, err, "self-signed certificate must be rejected by default")

	cfg.InsecureSkipVerify = true
	resp, err := NewClient(cfg, nil).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}
