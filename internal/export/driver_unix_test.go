//go:build unix

package export

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"os"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fifoexport/internal/delimited"
	"fifoexport/internal/fifo"
	"fifoexport/internal/loader"
	"fifoexport/internal/record"
	"fifoexport/internal/warehouse"
	"fifoexport/internal/warehouse/whtest"
)

func TestRun_StreamsEveryRecord(t *testing.T) {
	wh := &whtest.Warehouse{}
	cfg := testConfig(t)
	cfg.ProgressEvery = 1
	d := New(wh, cfg, nil)

	src := record.NewSlice(
		[]any{1, "meep,beep"},
		[]any{2, nil},
		[]any{3, true},
	)
	res, err := d.Run(context.Background(), src)
	require.NoError(t, err)

	want := "1,meep\\,beep\n2,null\n3,TRUE\n"
	assert.Equal(t, want, wh.Data())
	assert.EqualValues(t, 3, res.Records)
	assert.EqualValues(t, len(want), res.Bytes)
	assert.EqualValues(t, 3, res.Rows)
	assert.Equal(t, xxh3.HashString(want), res.Digest)
	assert.Contains(t, res.Statement, "LOAD T FROM '")
	assert.Equal(t, 1, wh.Loads(), "statement executed exactly once")
	assert.Equal(t, 1, wh.Closes())
	assert.Equal(t, StateClosed, d.State())

	_, err = os.Stat(d.PipePath())
	assert.True(t, os.IsNotExist(err), "pipe removed after run")
}

func TestRun_EmptySource(t *testing.T) {
	wh := &whtest.Warehouse{}
	res, err := New(wh, testConfig(t), nil).Run(context.Background(), record.NewSlice())
	require.NoError(t, err)
	assert.Zero(t, res.Records)
	assert.Empty(t, wh.Data())
	assert.Equal(t, 1, wh.Loads())
}

func TestRun_ConnectionFailure(t *testing.T) {
	before := runtime.NumGoroutine()
	boom := errors.New("login failed")
	wh := &whtest.Warehouse{ConnectErr: boom}
	d := New(wh, testConfig(t), nil)

	_, err := d.Run(context.Background(), record.NewSlice([]any{1}))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConnection), "got %v", err)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, wh.Loads())

	_, statErr := os.Stat(d.PipePath())
	assert.True(t, os.IsNotExist(statErr), "pipe removed after connection failure")
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		2*time.Second, 10*time.Millisecond, "no goroutine left behind")
}

func TestRun_StatementFailsAfterWrites(t *testing.T) {
	boom := errors.New("constraint violation on row 2")
	wh := &whtest.Warehouse{}
	wh.Load = func(ctx context.Context, st warehouse.Statement) (int64, error) {
		_, err := whtest.ReadAll(ctx, st, nil)
		require.NoError(t, err)
		return 0, boom
	}

	_, err := New(wh, testConfig(t), nil).Run(context.Background(), record.NewSlice([]any{1}, []any{2}))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLoadStatement), "got %v", err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, wh.Loads())
}

// wideSource yields n records of one size-byte field, well past the pipe
// buffer in total.
func wideSource(n, size int) record.Source {
	v := strings.Repeat("x", size)
	calls := 0
	return record.Func(func(context.Context) (*record.Row, error) {
		if calls == n {
			return nil, io.EOF
		}
		calls++
		r := record.GetRow(1)
		r.V[0] = v
		return r, nil
	})
}

// readThenHangUp reads a little of the pipe, closes it and returns loadErr.
func readThenHangUp(loadErr error) whtest.LoadFunc {
	return func(ctx context.Context, st warehouse.Statement) (int64, error) {
		f, err := fifo.OpenRead(ctx, st.PipePath)
		if err != nil {
			return 0, err
		}
		buf := make([]byte, 100)
		_, err = io.ReadFull(f, buf)
		f.Close()
		if err != nil {
			return 0, err
		}
		return 0, loadErr
	}
}

func TestRun_ReaderDiesMidStreamWithLoadFailure(t *testing.T) {
	boom := errors.New("rejected row 3")
	wh := &whtest.Warehouse{Load: readThenHangUp(boom)}
	d := New(wh, testConfig(t), nil)

	res, err := d.Run(context.Background(), wideSource(5000, 500))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLoadStatement), "got %v", err)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, res.Records, int64(5000), "writes stopped early")
	assert.Equal(t, 1, wh.Loads())
	assert.Equal(t, StateFailed, d.State())

	_, statErr := os.Stat(d.PipePath())
	assert.True(t, os.IsNotExist(statErr), "pipe removed")
}

func TestRun_ReaderClosesEarlyWithoutLoadFailure(t *testing.T) {
	wh := &whtest.Warehouse{Load: readThenHangUp(nil)}
	d := New(wh, testConfig(t), nil)

	res, err := d.Run(context.Background(), wideSource(5000, 500))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIO), "got %v", err)
	assert.ErrorIs(t, err, syscall.EPIPE)
	assert.ErrorContains(t, err, "io error: write")
	assert.Less(t, res.Records, int64(5000))
	assert.Equal(t, 1, wh.Loads())
	assert.Equal(t, StateFailed, d.State())
}

func TestRun_StatementFailsBeforeOpeningPipe(t *testing.T) {
	boom := errors.New("table T does not exist")
	wh := &whtest.Warehouse{Load: func(context.Context, warehouse.Statement) (int64, error) { return 0, boom }}

	_, err := New(wh, testConfig(t), nil).Run(context.Background(), record.NewSlice([]any{1}))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLoadStatement), "got %v", err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, wh.Loads())
}

func TestRun_RecordErrorAbortsLoad(t *testing.T) {
	boom := errors.New("malformed row")
	aborted := make(chan struct{})
	wh := &whtest.Warehouse{}
	wh.Load = func(ctx context.Context, st warehouse.Statement) (int64, error) {
		n, err := whtest.ReadAll(ctx, st, nil)
		if ctx.Err() != nil {
			close(aborted)
			return n, ctx.Err()
		}
		return n, err
	}

	calls := 0
	src := record.Func(func(ctx context.Context) (*record.Row, error) {
		calls++
		if calls == 3 {
			return nil, boom
		}
		r := record.GetRow(1)
		r.V[0] = calls
		return r, nil
	})

	res, err := New(wh, testConfig(t), nil).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRecord), "got %v", err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrAborted)
	assert.EqualValues(t, 2, res.Records)

	select {
	case <-aborted:
	default:
		t.Fatal("load was not aborted")
	}
	assert.Equal(t, 1, wh.Loads())
}

func TestRun_EncodeErrorIsRecordError(t *testing.T) {
	wh := &whtest.Warehouse{}
	src := record.NewSlice([]any{1}, []any{badValuer{}})

	_, err := New(wh, testConfig(t), nil).Run(context.Background(), src)
	assert.True(t, IsKind(err, KindRecord), "got %v", err)
	assert.ErrorContains(t, err, "encode record 2")
}

func TestRun_CancelledWhileStreaming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wh := &whtest.Warehouse{}
	calls := 0
	src := record.Func(func(ctx context.Context) (*record.Row, error) {
		calls++
		if calls == 1 {
			r := record.GetRow(1)
			r.V[0] = 1
			return r, nil
		}
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := testConfig(t)
	cfg.Grace = time.Second
	_, err := New(wh, cfg, nil).Run(ctx, src)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIO), "got %v", err)
	assert.ErrorIs(t, err, loader.ErrInterrupted)
	assert.Equal(t, 1, wh.Loads())
}

func TestRun_EnclosureWarningLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig(t)
	cfg.Delimiters = delimited.DelimiterSet{Field: ',', Record: '\n', Escape: '\\', Enclose: '"'}

	wh := &whtest.Warehouse{}
	res, err := New(wh, cfg, zap.New(core)).Run(context.Background(),
		record.NewSlice([]any{"a,b"}, []any{"c"}, []any{"d"}))
	require.NoError(t, err)

	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, logs.FilterField(zap.String("setting", "enclosed_by")).Len())
	assert.Equal(t, "a\\,b\nc\nd\n", wh.Data())
}

type badValuer struct{}

func (badValuer) Value() (driver.Value, error) { return nil, io.ErrUnexpectedEOF }
