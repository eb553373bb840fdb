// Package parquet reads flat Parquet files with parquet-go. Parquet needs
// random access, so a non-file input is first spooled to a temporary file
// (option spool_dir, default os.TempDir()); Close removes it.
//
// Leaf columns are matched to target columns by canonical name; the dotted
// path is used for columns nested in groups. Repeated columns are rejected.
// DATE and TIMESTAMP logical types become time.Time, byte arrays become
// strings.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"fifoexport/internal/config"
	"fifoexport/internal/parser/colmap"
	"fifoexport/internal/record"
)

const batchSize = 256

type leafConv func(parquet.Value) any

// Reader is a record.Source over a Parquet file.
type Reader struct {
	pr      *parquet.Reader
	spool   *os.File
	columns []string
	idx     []int // idx[target] = leaf column index, or -1
	conv    []leafConv

	buf  []parquet.Row
	pos  int
	fill int
	eof  bool
	n    int
}

// NewReader opens r. columns must not be empty.
func NewReader(r io.Reader, columns []string, opt config.Options) (*Reader, error) {
	if len(columns) == 0 {
		return nil, errors.New("parquet: target columns are required")
	}

	rd := &Reader{columns: columns}
	ra, size, err := rd.random(r, opt.String("spool_dir", ""))
	if err != nil {
		return nil, err
	}
	f, err := parquet.OpenFile(ra, size)
	if err != nil {
		rd.Close()
		return nil, fmt.Errorf("parquet: open: %w", err)
	}

	schema := f.Schema()
	paths := schema.Columns()
	names := make([]string, len(paths))
	rd.conv = make([]leafConv, len(paths))
	for i, p := range paths {
		names[i] = strings.Join(p, ".")
		leaf, ok := schema.Lookup(p...)
		if !ok {
			rd.Close()
			return nil, fmt.Errorf("parquet: column %s not in schema", names[i])
		}
		if leaf.MaxRepetitionLevel > 0 {
			rd.Close()
			return nil, fmt.Errorf("parquet: repeated column %s is not supported", names[i])
		}
		rd.conv[leaf.ColumnIndex] = converter(leaf.Node.Type().LogicalType())
	}
	_, rd.idx, err = colmap.Index(names, columns, opt.StringMap("header_map"))
	if err != nil {
		rd.Close()
		return nil, fmt.Errorf("parquet: %w", err)
	}

	rd.pr = parquet.NewReader(f)
	rd.buf = make([]parquet.Row, batchSize)
	return rd, nil
}

// random returns r as an io.ReaderAt, spooling it to disk unless it is
// already a regular file.
func (rd *Reader) random(r io.Reader, dir string) (io.ReaderAt, int64, error) {
	if f, ok := r.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
			return f, fi.Size(), nil
		}
	}
	tmp, err := os.CreateTemp(dir, "fifoexport-*.parquet")
	if err != nil {
		return nil, 0, fmt.Errorf("parquet: spool: %w", err)
	}
	rd.spool = tmp
	size, err := io.Copy(tmp, r)
	if err != nil {
		rd.Close()
		return nil, 0, fmt.Errorf("parquet: spool: %w", err)
	}
	return tmp, size, nil
}

// Columns returns the row layout.
func (rd *Reader) Columns() []string { return rd.columns }

// Next returns the next row. Row.Line is the 1-based row number.
func (rd *Reader) Next(ctx context.Context) (*record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rd.pos >= rd.fill {
		if rd.eof {
			return nil, io.EOF
		}
		n, err := rd.pr.ReadRows(rd.buf)
		rd.pos, rd.fill = 0, n
		if errors.Is(err, io.EOF) {
			rd.eof = true
		} else if err != nil {
			return nil, fmt.Errorf("parquet: row %d: %w", rd.n+1, err)
		}
		if n == 0 {
			return nil, io.EOF
		}
	}

	src := rd.buf[rd.pos]
	rd.pos++
	rd.n++

	byLeaf := make([]any, len(rd.conv))
	for _, v := range src {
		c := v.Column()
		if c < 0 || c >= len(byLeaf) || v.IsNull() {
			continue
		}
		byLeaf[c] = rd.conv[c](v)
	}

	row := record.GetRow(len(rd.idx))
	row.Line = rd.n
	for t, leaf := range rd.idx {
		if leaf >= 0 {
			row.V[t] = byLeaf[leaf]
		}
	}
	return row, nil
}

// Close releases the reader and removes the spool file.
func (rd *Reader) Close() error {
	var err error
	if rd.pr != nil {
		err = rd.pr.Close()
	}
	if rd.spool != nil {
		name := rd.spool.Name()
		rd.spool.Close()
		os.Remove(name)
		rd.spool = nil
	}
	return err
}

func converter(lt *format.LogicalType) leafConv {
	switch {
	case lt != nil && lt.Date != nil:
		return func(v parquet.Value) any {
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		}
	case lt != nil && lt.Timestamp != nil:
		unit := lt.Timestamp.Unit
		return func(v parquet.Value) any {
			n := v.Int64()
			switch {
			case unit.Millis != nil:
				return time.UnixMilli(n).UTC()
			case unit.Micros != nil:
				return time.UnixMicro(n).UTC()
			default:
				return time.Unix(0, n).UTC()
			}
		}
	}
	return plain
}

func plain(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
