package warehouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn inserts rows aligned to columns and returns the number inserted. It
// is called once per batch and must honor ctx.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the total reported by
// copyFn and the first error. Progress is logged at debug level per batch.
//
// Rows passed to copyFn must not be retained after it returns.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total     int64
		batches   int64
		batch     = make([][]any, 0, batchSize)
		start     = time.Now()
		lastFlush = start
		lastTotal int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Warn("batch insert failed", zap.Int64("inserted", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(total-lastTotal) / since.Seconds()
		}
		log.Debug("batch inserted",
			zap.Int64("batch", batches),
			zap.Int64("inserted", n),
			zap.Int64("total", total),
			zap.Float64("rps", rps),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlush = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
