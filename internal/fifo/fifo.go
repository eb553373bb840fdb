// Package fifo owns the named pipe that connects the record writer to the
// warehouse bulk loader.
//
// A Bridge is created for exactly one export attempt. Its lifecycle is
// Create → OpenWrite (once) → Close of the returned writer → Dispose.
package fifo

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultName is the pipe's file name inside the attempt directory.
const DefaultName = "netezza.txt"

var (
	// ErrUnsupported is returned on platforms without named pipes.
	ErrUnsupported = errors.New("fifo: named pipes are not supported on this platform")
	// ErrAbandoned is returned by OpenWrite when the reader went away before
	// it ever opened the pipe.
	ErrAbandoned = errors.New("fifo: reader finished before opening the pipe")
	// ErrAlreadyOpened is returned by a second OpenWrite call.
	ErrAlreadyOpened = errors.New("fifo: write side already opened")
)

// ResourceError reports that the pipe could not be prepared.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string { return "fifo: prepare " + e.Path + ": " + e.Err.Error() }
func (e *ResourceError) Unwrap() error { return e.Err }

// IOError reports that the pipe could not be opened or written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return "fifo: io " + e.Path + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Pipe is what the export driver needs from a bridge.
type Pipe interface {
	Path() string
	OpenWrite(ctx context.Context, abandon <-chan struct{}) (io.WriteCloser, error)
	Unblock()
	Dispose()
}

// PollInterval is how often OpenWrite retries while waiting for a reader.
var PollInterval = 10 * time.Millisecond

// Bridge is a named pipe at a private path.
type Bridge struct {
	path string
	dir  string
	log  *zap.Logger

	mu        sync.Mutex
	attempted bool
	opened    bool
	disposed  bool
}

var _ Pipe = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for best-effort cleanup failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithOwnedDir makes Dispose remove dir as well, once it is empty.
func WithOwnedDir(dir string) Option {
	return func(b *Bridge) { b.dir = dir }
}

// AttemptPath returns <workDir>/<attempt>/<name>.
func AttemptPath(workDir, attempt, name string) string {
	if name == "" {
		name = DefaultName
	}
	return filepath.Join(workDir, attempt, name)
}

// Create makes a new FIFO at path, replacing any stale entry. The parent
// directory is created when missing.
func Create(path string, opts ...Option) (*Bridge, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ResourceError{Path: path, Err: err}
	}
	b := &Bridge{path: abs, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With(zap.String("component", "fifo"), zap.String("pipe", abs))

	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, &ResourceError{Path: abs, Err: err}
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ResourceError{Path: abs, Err: err}
	}
	if err := mkfifo(abs, 0o600); err != nil {
		return nil, &ResourceError{Path: abs, Err: err}
	}
	b.log.Debug("pipe created")
	return b, nil
}

// Path returns the absolute pipe path.
func (b *Bridge) Path() string { return b.path }

// OpenWrite opens the write side. It waits for a reader to open the other
// end, giving up when abandon is closed or ctx is done. The returned writer
// blocks on each write until the reader has made room.
func (b *Bridge) OpenWrite(ctx context.Context, abandon <-chan struct{}) (io.WriteCloser, error) {
	b.mu.Lock()
	if b.attempted {
		b.mu.Unlock()
		return nil, &IOError{Path: b.path, Err: ErrAlreadyOpened}
	}
	if b.disposed {
		b.mu.Unlock()
		return nil, &IOError{Path: b.path, Err: os.ErrNotExist}
	}
	b.attempted = true
	b.mu.Unlock()

	w, err := openWrite(ctx, b.path, abandon)
	if err != nil {
		return nil, &IOError{Path: b.path, Err: err}
	}
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	b.log.Debug("write side opened")
	return w, nil
}

// Unblock wakes a reader that is parked opening the pipe when the write side
// will never be opened. It is a no-op once OpenWrite succeeded.
func (b *Bridge) Unblock() {
	b.mu.Lock()
	opened := b.opened
	b.mu.Unlock()
	if opened {
		return
	}
	if err := unblockReader(b.path); err != nil {
		b.log.Debug("unblock reader", zap.Error(err))
	}
}

// Dispose removes the pipe and, when owned, its directory. Failures are
// logged. Calling it more than once is harmless.
func (b *Bridge) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	b.mu.Unlock()

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log.Warn("remove pipe", zap.Error(err))
	}
	if b.dir != "" {
		if err := os.Remove(b.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.log.Warn("remove attempt directory", zap.String("dir", b.dir), zap.Error(err))
		}
	}
	b.log.Debug("pipe disposed")
}

// OpenRead opens the read side of the pipe at path. It blocks until a writer
// opens the other end; a writer that opens and immediately closes (see
// Unblock) yields a reader at end-of-stream.
func OpenRead(ctx context.Context, path string) (*os.File, error) {
	f, err := openRead(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}
