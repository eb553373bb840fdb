// Package whtest provides an in-memory warehouse for tests of the loader and
// export packages.
package whtest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"fifoexport/internal/delimited"
	"fifoexport/internal/fifo"
	"fifoexport/internal/warehouse"
)

// Dialect is a Netezza-like dialect.
var Dialect = delimited.Dialect{
	Name:         "fake",
	Escape:       '\\',
	Record:       '\n',
	NullToken:    "null",
	Bools:        delimited.BoolTrueFalse,
	ExtraEscapes: []rune{'\r'},
}

// LoadFunc replaces the default load behaviour.
type LoadFunc func(ctx context.Context, st warehouse.Statement) (int64, error)

// Warehouse records every interaction. The zero value reads the whole pipe
// and reports one row per newline.
type Warehouse struct {
	D          *delimited.Dialect
	ConnectErr error
	CloseErr   error
	Load       LoadFunc

	mu       sync.Mutex
	connects int
	loads    int
	closes   int
	data     bytes.Buffer
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

// Dialect implements warehouse.Warehouse.
func (w *Warehouse) Dialect() delimited.Dialect {
	if w.D != nil {
		return *w.D
	}
	return Dialect
}

// Statement implements warehouse.Warehouse.
func (w *Warehouse) Statement(t warehouse.Target, pipePath string, _ delimited.DelimiterSet) (warehouse.Statement, error) {
	return warehouse.Statement{SQL: "LOAD " + t.Table + " FROM '" + pipePath + "'", PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (w *Warehouse) Connect(context.Context, warehouse.Target) (warehouse.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connects++
	if w.ConnectErr != nil {
		return nil, w.ConnectErr
	}
	return &conn{w: w}, nil
}

// Connects, Loads and Closes count calls.
func (w *Warehouse) Connects() int { w.mu.Lock(); defer w.mu.Unlock(); return w.connects }
func (w *Warehouse) Loads() int    { w.mu.Lock(); defer w.mu.Unlock(); return w.loads }
func (w *Warehouse) Closes() int   { w.mu.Lock(); defer w.mu.Unlock(); return w.closes }

// Data returns everything the default loader read from the pipe.
func (w *Warehouse) Data() string { w.mu.Lock(); defer w.mu.Unlock(); return w.data.String() }

type conn struct{ w *Warehouse }

func (c *conn) Load(ctx context.Context, st warehouse.Statement) (int64, error) {
	c.w.mu.Lock()
	c.w.loads++
	fn := c.w.Load
	c.w.mu.Unlock()
	if fn != nil {
		return fn(ctx, st)
	}
	return ReadAll(ctx, st, c.w.record)
}

func (c *conn) Close() error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	c.w.closes++
	return c.w.CloseErr
}

func (w *Warehouse) record(b []byte) {
	w.mu.Lock()
	w.data.Write(b)
	w.mu.Unlock()
}

// ReadAll opens the pipe, reads it to end-of-stream, hands every chunk to
// sink and returns the number of record delimiters seen.
func ReadAll(ctx context.Context, st warehouse.Statement, sink func([]byte)) (int64, error) {
	f, err := fifo.OpenRead(ctx, st.PipePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rec := st.Delimiters.Record
	if rec == 0 {
		rec = '\n'
	}
	var rows int64
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if sink != nil {
				sink(buf[:n])
			}
			rows += int64(bytes.Count(buf[:n], []byte(string(rec))))
		}
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if err := ctx.Err(); err != nil {
			return rows, err
		}
	}
}
