//go:build unix

package fifo

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func mkfifo(path string, mode uint32) error {
	return unix.Mkfifo(path, mode)
}

// openWrite polls a non-blocking open. Opening a FIFO for writing with
// O_NONBLOCK fails with ENXIO until some process has the read side open (or
// is blocked opening it), so the loop never parks the thread. The descriptor
// stays non-blocking and is handed to the runtime poller by os.NewFile, so
// writes park the goroutine, not the thread, and honor write deadlines.
func openWrite(ctx context.Context, path string, abandon <-chan struct{}) (io.WriteCloser, error) {
	t := time.NewTimer(PollInterval)
	defer t.Stop()

	for {
		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			return os.NewFile(uintptr(fd), path), nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if !errors.Is(err, unix.ENXIO) {
			return nil, &os.PathError{Op: "open", Path: path, Err: err}
		}

		t.Reset(PollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-abandon:
			return nil, ErrAbandoned
		case <-t.C:
		}
	}
}

func openRead(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// unblockReader opens and immediately closes the write side so that a reader
// blocked in open(2) returns and then sees end-of-stream.
func unblockReader(path string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENOENT) {
			return nil
		}
		return err
	}
	return unix.Close(fd)
}
