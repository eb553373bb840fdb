// Package loader runs the warehouse bulk-load statement on its own goroutine
// so the caller stays free to stream records into the pipe.
//
// Startup has two phases that must not be merged: InitConnection connects
// synchronously, so connection failures surface before any pipe I/O, and
// Start launches the statement. The statement blocks until the pipe reaches
// end-of-stream and the warehouse has ingested everything.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fifoexport/internal/warehouse"
)

// ErrInterrupted is returned by Join when its context ended before the load
// finished. It is distinct from a load failure.
var ErrInterrupted = errors.New("loader: interrupted while waiting for the load")

// DefaultGrace bounds how long Join keeps waiting after its context ends.
const DefaultGrace = 30 * time.Second

// Outcome is the single result of an agent's run.
type Outcome struct {
	Rows    int64
	Err     error
	Elapsed time.Duration
}

// Agent owns one warehouse connection and executes one statement on it.
type Agent struct {
	wh     warehouse.Warehouse
	target warehouse.Target
	stmt   warehouse.Statement
	log    *zap.Logger
	grace  time.Duration

	mu      sync.Mutex
	conn    warehouse.Conn
	started bool
	cancel  context.CancelFunc

	done    chan struct{}
	outcome Outcome // written once by run before done is closed

	execs atomic.Int32
}

// Option configures an Agent.
type Option func(*Agent)

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.grace = d
		}
	}
}

// New returns an idle agent.
func New(wh warehouse.Warehouse, target warehouse.Target, stmt warehouse.Statement, log *zap.Logger, opts ...Option) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Agent{
		wh:     wh,
		target: target,
		stmt:   stmt,
		log:    log.With(zap.String("component", "loader"), zap.String("table", target.Table)),
		grace:  DefaultGrace,
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// InitConnection connects to the warehouse. It must succeed before Start.
func (a *Agent) InitConnection(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return errors.New("loader: connection already initialized")
	}
	conn, err := a.wh.Connect(ctx, a.target)
	if err != nil {
		return err
	}
	if conn == nil {
		return errors.New("loader: warehouse returned no connection")
	}
	a.conn = conn
	a.log.Debug("connection established")
	return nil
}

// Start launches the statement and returns immediately. Calling it before a
// successful InitConnection, or twice, is a programming error and panics.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		panic("loader: Start called before InitConnection")
	}
	if a.started {
		panic("loader: Start called twice")
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.run(runCtx, a.conn)
}

func (a *Agent) run(ctx context.Context, conn warehouse.Conn) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.outcome.Err = fmt.Errorf("loader: panic during load: %v", r)
		}
		a.outcome.Elapsed = time.Since(start)
		if err := conn.Close(); err != nil {
			a.log.Warn("close connection", zap.Error(err))
		}
		a.cancel()
		close(a.done)
	}()

	a.execs.Add(1)
	a.log.Debug("executing load statement", zap.String("sql", a.stmt.SQL))
	rows, err := conn.Load(ctx, a.stmt)
	a.outcome = Outcome{Rows: rows, Err: err}
	if err != nil {
		a.log.Debug("load statement failed", zap.Error(err))
		return
	}
	a.log.Debug("load statement finished", zap.Int64("rows", rows))
}

// Done is closed once the statement has returned and the connection has
// been closed.
func (a *Agent) Done() <-chan struct{} { return a.done }

// Join waits for the statement to finish and returns its outcome. If ctx ends
// first, the statement is aborted and Join waits up to the grace period for
// it to wind down; the error is then ErrInterrupted.
func (a *Agent) Join(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
	}

	a.Abort()
	t := time.NewTimer(a.grace)
	defer t.Stop()
	select {
	case <-a.done:
		return a.outcome, ErrInterrupted
	case <-t.C:
		a.log.Warn("load did not stop within grace period", zap.Duration("grace", a.grace))
		return Outcome{}, ErrInterrupted
	}
}

// Abort cancels the statement's context. Drivers that support cancellation
// roll back the partial load. Safe to call at any time.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases a connection that was initialized but never started.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.conn == nil {
		return nil
	}
	conn := a.conn
	a.conn = nil
	return conn.Close()
}

// Executions reports how many times the statement has been executed.
func (a *Agent) Executions() int { return int(a.execs.Load()) }
