// Package sqlite is a loopback warehouse for development and tests. It reads
// the pipe in-process, decodes each record with the same delimiter set the
// writer used, and inserts the rows in batches inside one transaction, so a
// failed load leaves the table untouched.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers "sqlite"

	"fifoexport/internal/delimited"
	"fifoexport/internal/fifo"
	"fifoexport/internal/warehouse"
)

// Kind is the registry name.
const Kind = "sqlite"

// OptBatchSize is the Options key for rows per prepared-statement batch.
const OptBatchSize = "batch_size"

// Dialect mirrors the Postgres text format but also accepts enclosure, which
// makes it useful for exercising both encoder modes end to end.
var Dialect = delimited.Dialect{
	Name:            Kind,
	Escape:          '\\',
	SupportsEnclose: true,
	Record:          '\n',
	NullToken:       `\N`,
	Bools:           delimited.BoolOneZero,
	ExtraEscapes:    []rune{'\r'},
}

// Warehouse implements warehouse.Warehouse.
type Warehouse struct {
	// Log receives per-batch progress. Nil is allowed.
	Log *zap.Logger
}

var (
	openSQL  = warehouse.OpenSQL
	openPipe = fifo.OpenRead
)

func init() { warehouse.Register(Kind, Warehouse{}) }

// Dialect implements warehouse.Warehouse.
func (Warehouse) Dialect() delimited.Dialect { return Dialect }

// Statement implements warehouse.Warehouse. The SQL is the per-row INSERT.
func (Warehouse) Statement(t warehouse.Target, pipePath string, _ delimited.DelimiterSet) (warehouse.Statement, error) {
	if strings.TrimSpace(t.Table) == "" {
		return warehouse.Statement{}, errors.New("sqlite: table is required")
	}
	if len(t.Columns) == 0 {
		return warehouse.Statement{}, errors.New("sqlite: columns are required")
	}
	quoted := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		marks[i] = "?"
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return warehouse.Statement{SQL: sql, PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (w Warehouse) Connect(ctx context.Context, t warehouse.Target) (warehouse.Conn, error) {
	db, err := openSQL(ctx, "sqlite", t.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: connect")
	}
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{db: db, batchSize: t.OptInt(OptBatchSize, 1000), log: log.With(zap.String("component", "sqlite"))}, nil
}

// Conn reads the pipe and inserts rows.
type Conn struct {
	db        *sql.DB
	batchSize int
	log       *zap.Logger
}

// Load implements warehouse.Conn.
func (c *Conn) Load(ctx context.Context, st warehouse.Statement) (int64, error) {
	f, err := openPipe(ctx, st.PipePath)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: open pipe")
	}
	defer f.Close()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: begin tx")
	}
	stmt, err := tx.PrepareContext(ctx, st.SQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, errors.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows := make(chan []any, c.batchSize)
	decodeErr := make(chan error, 1)
	go func() {
		defer close(rows)
		decodeErr <- decode(ctx, f, st, rows)
	}()

	copyFn := func(ctx context.Context, _ []string, batch [][]any) (int64, error) {
		var n int64
		for _, row := range batch {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return n, errors.Wrap(err, "sqlite: insert")
			}
			n++
		}
		return n, nil
	}

	total, err := warehouse.LoadBatches(ctx, st.Columns, rows, c.batchSize, copyFn, c.log)
	cancel()
	if err != nil {
		// Wakes the decoder if it is parked in a read.
		_ = f.Close()
	}
	derr := <-decodeErr
	if err == nil && derr != nil {
		err = derr
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "sqlite: commit")
	}
	return total, nil
}

// Close implements warehouse.Conn.
func (c *Conn) Close() error { return c.db.Close() }

func decode(ctx context.Context, r io.Reader, st warehouse.Statement, out chan<- []any) error {
	dec := delimited.NewDecoder(r, st.Delimiters, st.Dialect)
	for {
		rec, err := dec.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "sqlite: decode")
		}
		if len(rec) != len(st.Columns) {
			return errors.Errorf("sqlite: record %d has %d fields, want %d", dec.Record(), len(rec), len(st.Columns))
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return nil
		}
	}
}
