// Package export streams records into a warehouse table through a named pipe.
//
// A Driver runs one export attempt:
//
//	create pipe → connect loader → start loader → open write side
//	→ stream encoded records → close write side → join loader
//
// The loader goroutine executes the bulk-load statement that reads the pipe,
// the driver goroutine writes it. The pipe's OS buffer is the only flow
// control between them. Every failure is reported as an *Error with a Kind.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"fifoexport/internal/delimited"
	"fifoexport/internal/fifo"
	"fifoexport/internal/loader"
	"fifoexport/internal/metrics"
	"fifoexport/internal/record"
	"fifoexport/internal/warehouse"
)

// State is the driver's position in the attempt lifecycle.
type State int

const (
	StateIdle State = iota
	StatePipeReady
	StateLoaderStarted
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePipeReady:
		return "pipe_ready"
	case StateLoaderStarted:
		return "loader_started"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config describes one attempt.
type Config struct {
	// Job labels metrics and logs.
	Job string
	// Attempt names the private directory that holds the pipe.
	Attempt string
	// WorkDir is the parent of the attempt directory.
	WorkDir string
	// PipeName defaults to fifo.DefaultName.
	PipeName string

	Target     warehouse.Target
	Delimiters delimited.DelimiterSet

	// Grace bounds the join after cancellation (loader.DefaultGrace if zero).
	Grace time.Duration
	// ProgressEvery logs a heartbeat every N records; zero disables it.
	ProgressEvery int64
}

// Result summarizes a finished attempt.
type Result struct {
	// Records written into the pipe.
	Records int64
	// Bytes written into the pipe.
	Bytes int64
	// Rows reported loaded by the warehouse; -1 when the driver cannot tell.
	Rows int64
	// Digest is the xxh3 hash of every byte written.
	Digest uint64
	// Elapsed is the wall time of Run.
	Elapsed time.Duration
	// Statement is the load statement that was executed.
	Statement string
	// Warnings are delimiter downgrades applied for the dialect.
	Warnings []delimited.Warning
}

// createPipe is swapped in tests.
var createPipe = func(path string, opts ...fifo.Option) (fifo.Pipe, error) {
	return fifo.Create(path, opts...)
}

// Driver runs a single export attempt. It is not reusable.
type Driver struct {
	wh  warehouse.Warehouse
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	state State
}

// New returns an idle driver.
func New(wh warehouse.Warehouse, cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PipeName == "" {
		cfg.PipeName = fifo.DefaultName
	}
	if cfg.Grace <= 0 {
		cfg.Grace = loader.DefaultGrace
	}
	return &Driver{
		wh:  wh,
		cfg: cfg,
		log: log.With(
			zap.String("component", "export"),
			zap.String("attempt", cfg.Attempt),
			zap.String("table", cfg.Target.Table),
		),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	d.mu.Unlock()
	d.log.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// PipePath returns where the attempt's pipe lives.
func (d *Driver) PipePath() string {
	return fifo.AttemptPath(d.cfg.WorkDir, d.cfg.Attempt, d.cfg.PipeName)
}

// step times one lifecycle step into metrics.
func (d *Driver) step(name string, start time.Time, err error) {
	metrics.RecordStep(d.cfg.Job, name, err, time.Since(start))
}

// Run executes the attempt, reading records from src until io.EOF.
func (d *Driver) Run(ctx context.Context, src record.Source) (Result, error) {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return Result{}, errors.New("export: driver already used")
	}
	d.mu.Unlock()

	began := time.Now()
	res, err := d.run(ctx, src)
	res.Elapsed = time.Since(began)
	if err != nil {
		d.setState(StateFailed)
		d.log.Error("export failed", zap.Error(err), zap.Int64("records", res.Records))
		return res, err
	}
	d.setState(StateClosed)
	d.log.Info("export finished",
		zap.Int64("records", res.Records),
		zap.Int64("bytes", res.Bytes),
		zap.Int64("rows", res.Rows),
		zap.String("digest", fmt.Sprintf("%016x", res.Digest)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (d *Driver) run(ctx context.Context, src record.Source) (Result, error) {
	var res Result
	path := d.PipePath()
	log := d.log.With(zap.String("pipe", path))

	stmt, warns, err := warehouse.Render(d.wh, d.cfg.Target, path, d.cfg.Delimiters)
	if err != nil {
		return res, newError(KindConfig, "render statement", err)
	}
	res.Statement = stmt.SQL
	res.Warnings = warns
	for _, w := range warns {
		log.Warn("delimiter setting not supported by warehouse", zap.String("setting", w.Setting), zap.String("detail", w.Message))
	}

	// Idle → PipeReady
	t0 := time.Now()
	pipe, err := createPipe(path, fifo.WithLogger(log), fifo.WithOwnedDir(filepath.Dir(path)))
	d.step(metrics.StepCreatePipe, t0, err)
	if err != nil {
		return res, newError(KindResource, "create pipe", err)
	}
	defer pipe.Dispose()
	d.setState(StatePipeReady)

	// PipeReady → LoaderStarted
	agent := loader.New(d.wh, d.cfg.Target, stmt, log, loader.WithGrace(d.cfg.Grace))
	t0 = time.Now()
	err = agent.InitConnection(ctx)
	d.step(metrics.StepConnect, t0, err)
	if err != nil {
		return res, newError(KindConnection, "connect", err)
	}
	agent.Start(ctx)
	d.setState(StateLoaderStarted)

	// LoaderStarted → Streaming
	t0 = time.Now()
	w, err := pipe.OpenWrite(ctx, agent.Done())
	d.step(metrics.StepOpenWrite, t0, err)
	if err != nil {
		return res, d.failBeforeStreaming(ctx, agent, pipe, err)
	}
	d.setState(StateStreaming)

	t0 = time.Now()
	sErr := d.stream(ctx, src, w, stmt, &res, agent, log)
	d.step(metrics.StepStream, t0, sErr)
	metrics.RecordRows(d.cfg.Job, "written", res.Records)
	metrics.RecordBytes(d.cfg.Job, res.Bytes)

	// Streaming → Draining: end-of-stream for the loader.
	d.setState(StateDraining)
	if cerr := w.Close(); cerr != nil {
		if sErr == nil {
			sErr = newError(KindIO, "close write side", cerr)
		} else {
			log.Warn("close write side", zap.Error(cerr))
		}
	}

	// Draining → Closed
	t0 = time.Now()
	out, jerr := agent.Join(ctx)
	d.step(metrics.StepJoin, t0, firstErr(jerr, out.Err))
	res.Rows = out.Rows
	metrics.RecordRows(d.cfg.Job, "loaded", out.Rows)

	return res, d.settle(sErr, out, jerr, log)
}

// settle picks the error to surface once the loader has been joined.
func (d *Driver) settle(streamErr error, out loader.Outcome, joinErr error, log *zap.Logger) error {
	if errors.Is(joinErr, loader.ErrInterrupted) {
		if streamErr != nil {
			log.Warn("stream failed before interruption", zap.Error(streamErr))
		}
		return newError(KindIO, "join loader", joinErr)
	}

	aborted := errors.Is(streamErr, ErrAborted)
	switch {
	case aborted:
		// The driver cancelled the load for its own failure.
		if out.Err != nil {
			log.Info("loader stopped after abort", zap.Error(out.Err))
		}
		return streamErr
	case out.Err != nil:
		if streamErr != nil {
			log.Debug("write failure superseded by load failure", zap.Error(streamErr))
		}
		return newError(KindLoadStatement, "load", out.Err)
	default:
		return streamErr
	}
}

// failBeforeStreaming handles an OpenWrite failure. When the loader finished
// without ever opening the pipe, its outcome explains why.
func (d *Driver) failBeforeStreaming(ctx context.Context, agent *loader.Agent, pipe fifo.Pipe, openErr error) error {
	if errors.Is(openErr, fifo.ErrAbandoned) {
		out, jerr := agent.Join(ctx)
		if jerr != nil {
			return newError(KindIO, "join loader", jerr)
		}
		if out.Err != nil {
			return newError(KindLoadStatement, "load", out.Err)
		}
		return newError(KindLoadStatement, "load", errors.New("load finished without reading the pipe"))
	}

	agent.Abort()
	pipe.Unblock()
	out, jerr := agent.Join(ctx)
	if out.Err != nil {
		d.log.Debug("loader stopped after open failure", zap.Error(out.Err))
	}
	if ctx.Err() != nil || errors.Is(jerr, loader.ErrInterrupted) {
		return newError(KindIO, "open write side", fmt.Errorf("%w: %w", loader.ErrInterrupted, openErr))
	}
	return newError(KindIO, "open write side", openErr)
}

// stream pulls, encodes and writes every record. On a source or encoding
// failure the loader is aborted before the write side is closed, so the
// partial stream is not committed.
func (d *Driver) stream(ctx context.Context, src record.Source, w io.Writer, st warehouse.Statement, res *Result, agent *loader.Agent, log *zap.Logger) error {
	if dl, ok := w.(interface{ SetWriteDeadline(time.Time) error }); ok {
		stop := context.AfterFunc(ctx, func() { _ = dl.SetWriteDeadline(time.Now()) })
		defer stop()
	}

	enc := delimited.NewEncoder(st.Delimiters, st.Dialect)
	digest := xxh3.New()
	defer func() { res.Digest = digest.Sum64() }()

	abort := func(k Kind, op string, err error) error {
		agent.Abort()
		return newError(k, op, fmt.Errorf("%w: %w", ErrAborted, err))
	}

	lastBeat := time.Now()
	for {
		row, err := src.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return abort(KindIO, "read source", fmt.Errorf("%w: %w", loader.ErrInterrupted, err))
			}
			return abort(KindRecord, fmt.Sprintf("read record %d", res.Records+1), err)
		}

		b, err := enc.Encode(row.V)
		line := row.Line
		row.Free()
		if err != nil {
			return abort(KindRecord, fmt.Sprintf("encode record %d (line %d)", res.Records+1, line), err)
		}

		n, err := w.Write(b)
		res.Bytes += int64(n)
		_, _ = digest.Write(b[:n])
		if err != nil {
			if ctx.Err() != nil {
				return abort(KindIO, "write", fmt.Errorf("%w: %w", loader.ErrInterrupted, err))
			}
			return newError(KindIO, "write", err)
		}
		res.Records++

		if every := d.cfg.ProgressEvery; every > 0 && res.Records%every == 0 {
			now := time.Now()
			log.Info("progress",
				zap.Int64("records", res.Records),
				zap.Int64("bytes", res.Bytes),
				zap.Float64("rps", float64(every)/now.Sub(lastBeat).Seconds()),
			)
			lastBeat = now
		}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
