package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// ArchiveStore is the append-only event store for accepted fixes.
type ArchiveStore interface {
	BatchInsertFixes(ctx context.Context, fixes []*domain.GPSFix) error
}

// ArchiveWriter batches accepted fixes toward the archive store off the hot
// path. Enqueue never blocks a vehicle worker; a full channel sheds the fix
// and counts the drop.
type ArchiveWriter struct {
	ch        chan *domain.GPSFix
	store     ArchiveStore
	batchSize int
	flushMS   int
	log       *slog.Logger
}

func NewArchiveWriter(store ArchiveStore, chanSize, batchSize, flushMS int, log *slog.Logger) *ArchiveWriter {
	return &ArchiveWriter{
		ch:        make(chan *domain.GPSFix, chanSize),
		store:     store,
		batchSize: batchSize,
		flushMS:   flushMS,
		log:       log,
	}
}

func (w *ArchiveWriter) Enqueue(fix *domain.GPSFix) {
	select {
	case w.ch <- fix:
	default:
		metrics.ArchiveWriteFailures.Add(1)
	}
}

func (w *ArchiveWriter) Run(ctx context.Context) {
	batch := make([]*domain.GPSFix, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case fix := <-w.ch:
			batch = append(batch, fix)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(context.Background(), batch)
			}
			return
		}
	}
}

func (w *ArchiveWriter) flush(ctx context.Context, batch []*domain.GPSFix) {
	err := w.store.BatchInsertFixes(ctx, batch)
	if err != nil {
		w.log.Warn("archive write failed, retrying", "batch", len(batch), "error", err)
		time.Sleep(500 * time.Millisecond)
		err = w.store.BatchInsertFixes(ctx, batch)
		if err != nil {
			w.log.Error("archive write permanently failed", "batch", len(batch), "error", err)
			metrics.ArchiveWriteFailures.Add(int64(len(batch)))
			return
		}
	}
	metrics.ArchiveWriteSuccess.Add(int64(len(batch)))
}
