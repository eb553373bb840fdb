// Package file implements the local filesystem datasource and the list files
// that name further inputs.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Stdin is the path that reads standard input instead of a file.
const Stdin = "-"

// Local opens one path on the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path. Opening is safe from concurrent
// goroutines; each Open returns its own descriptor.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open returns the file for reading. An already cancelled ctx short-circuits
// before touching the filesystem. Directories are rejected here rather than
// on the first Read. Errors keep their cause for errors.Is (os.ErrNotExist,
// os.ErrPermission).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.path == Stdin {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: is a directory", l.path)
	}
	return f, nil
}
