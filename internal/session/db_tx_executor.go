package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/score/model"
)

func newDBTxExecutor(opts dbTxExecutorOptions, shutdownCh chan<- error) *dbTxExecutor {
	return &dbTxExecutor{opts: opts, shutdownCh: shutdownCh}
}

type dbTxExecutorOptions struct {
	flushSize int
	flushTime time.Duration
	appendFn  appendScoresFn
}

// dbTxExecutor accumulates score records and inserts them in bulk, either
// when the buffer fills or on the flush timer.
type dbTxExecutor struct {
	mtx sync.Mutex

	opts       dbTxExecutorOptions
	buf        []model.Score
	shutdownCh chan<- error
}

// shutdown drains whatever is left in the buffer.
func (tx *dbTxExecutor) shutdown() error {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	if err := tx.opts.appendFn(context.Background(), tx.buf); err != nil {
		return fmt.Errorf("txExecutor: append many operation failed: %v", err)
	}
	tx.buf = tx.buf[:0]
	return nil
}

// write buffers one score, triggering a bulk insert when full.
func (tx *dbTxExecutor) write(ctx context.Context, score model.Score) {
	tx.mtx.Lock()
	tx.buf = append(tx.buf, score)
	bufLen := len(tx.buf)
	tx.mtx.Unlock()

	if bufLen >= tx.opts.flushSize {
		go tx.bulkAppend(ctx)
	}
}

func (tx *dbTxExecutor) bulkAppend(ctx context.Context) {
	logger := logging.FromContext(ctx)

	tx.mtx.Lock()
	tmpBuf := make([]model.Score, len(tx.buf))
	copy(tmpBuf, tx.buf)
	tx.buf = tx.buf[:0]
	tx.mtx.Unlock()

	if err := tx.opts.appendFn(context.Background(), tmpBuf); err != nil {
		logger.Errorf("txExecutor: append many operation failed: %v", err)
	}
}

// flusher periodically drains the buffer until the context ends, then drains
// it one final time and reports through the shutdown channel.
func (tx *dbTxExecutor) flusher(ctx context.Context) {
	defer func() {
		tx.shutdownCh <- tx.shutdown()
	}()
	ticker := time.NewTicker(tx.opts.flushTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tx.bulkAppend(ctx)
		case <-ctx.Done():
			return
		}
	}
}
