package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

const (
	// DefaultChunkSize stays under the store's per-transaction record ceiling.
	DefaultChunkSize = 400
	// MaxChunkSize is the store's per-transaction record ceiling.
	MaxChunkSize = 500
)

// ChunkWriter applies one chunk of status updates atomically, stamping each
// record's statusUpdatedAt with at.
type ChunkWriter interface {
	ApplyStatusChunk(ctx context.Context, updates []model.StatusUpdate, at time.Time) error
}

// ChunkError reports the chunk that failed. Chunks before Index are committed.
type ChunkError struct {
	Index  int
	Offset int
	Size   int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("commit chunk %d (offset %d, size %d): %v", e.Index, e.Offset, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// BatchCommitter splits updates into bounded chunks and commits them one at a time.
type BatchCommitter struct {
	logger *zap.Logger
	writer ChunkWriter
	now    func() time.Time
}

// NewBatchCommitter builds a committer over writer.
func NewBatchCommitter(logger *zap.Logger, writer ChunkWriter) *BatchCommitter {
	return &BatchCommitter{logger: logger, writer: writer, now: time.Now}
}

// Commit writes updates in consecutive chunks of at most chunkSize, sequentially.
// It stops at the first failing chunk and returns how many updates were committed
// before it. There is no cross-chunk rollback.
func (b *BatchCommitter) Commit(ctx context.Context, updates []model.StatusUpdate, chunkSize int) (int, error) {
	chunkSize = normalizeChunkSize(chunkSize)

	committed := 0
	for i, offset := 0, 0; offset < len(updates); i, offset = i+1, offset+chunkSize {
		if err := ctx.Err(); err != nil {
			return committed, err
		}

		end := min(offset+chunkSize, len(updates))
		chunk := updates[offset:end]

		if err := b.writer.ApplyStatusChunk(ctx, chunk, b.now().UTC()); err != nil {
			metrics.BatchChunksTotal.WithLabelValues("error").Inc()
			b.logger.Error("batch.chunk_failed",
				zap.Int("chunk", i),
				zap.Int("size", len(chunk)),
				zap.Int("committed", committed),
				zap.Error(err))
			return committed, &ChunkError{Index: i, Offset: offset, Size: len(chunk), Err: err}
		}

		metrics.BatchChunksTotal.WithLabelValues("ok").Inc()
		committed += len(chunk)
	}
	return committed, nil
}

func normalizeChunkSize(n int) int {
	switch {
	case n <= 0:
		return DefaultChunkSize
	case n > MaxChunkSize:
		return MaxChunkSize
	default:
		return n
	}
}
