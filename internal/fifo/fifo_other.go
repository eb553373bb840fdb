//go:build !unix

package fifo

import (
	"context"
	"io"
	"os"
)

func mkfifo(string, uint32) error { return ErrUnsupported }

func openWrite(context.Context, string, <-chan struct{}) (io.WriteCloser, error) {
	return nil, ErrUnsupported
}

func openRead(string) (*os.File, error) { return nil, ErrUnsupported }

func unblockReader(string) error { return nil }
