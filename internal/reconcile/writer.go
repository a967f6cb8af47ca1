package reconcile

import (
	"context"
	"log"
	"os"

	"github.com/treemirror/treemirror/internal/mirror"
)

// DefaultBatchSize is the number of rows submitted per write request.
const DefaultBatchSize = 50

// Event is one structured progress notification. The engine never
// prints; a calling CLI renders these however it likes.
type Event struct {
	Stage     string // "insert", "update", "propagate"
	Batch     int    // 1-based chunk index
	BatchSize int    // rows in this chunk
	Done      int    // rows applied so far in this stage
	Total     int    // rows planned for this stage
}

// WriteStats is the outcome of applying one change set.
type WriteStats struct {
	Inserted int
	Updated  int
	Skipped  int
	Errors   []string

	// Partial is set when the deadline expired before all chunks were
	// submitted. In-flight chunks complete; no new chunk starts.
	Partial bool
}

// nodeWriter is the slice of the mirror store the writer needs.
type nodeWriter interface {
	UpsertBatch(ctx context.Context, nodes []*mirror.Node) error
	UpsertNode(ctx context.Context, n *mirror.Node) error
}

// Writer applies insert and update sets to the mirror in fixed-size
// chunks. A chunk failure never aborts the run: the chunk is retried
// record by record so one bad row costs one row, and the remaining
// chunks proceed.
type Writer struct {
	store     nodeWriter
	batchSize int
	logger    *log.Logger
	progress  func(Event)
}

// NewWriter creates a batch writer. batchSize <= 0 selects
// DefaultBatchSize. If logger is nil, a default logger writing to
// stderr is used.
func NewWriter(store *mirror.Store, batchSize int, logger *log.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[write] ", log.LstdFlags)
	}
	return &Writer{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SetProgress installs a progress callback. Pass nil to disable.
func (w *Writer) SetProgress(fn func(Event)) {
	w.progress = fn
}

// Apply writes the change set to the mirror and returns final counts.
// Unchanged nodes are reported as skipped.
func (w *Writer) Apply(ctx context.Context, changes *Changes) *WriteStats {
	stats := &WriteStats{Skipped: changes.Unchanged}

	applied := w.applyChunked(ctx, "insert", changes.ToInsert, stats)
	stats.Inserted = applied

	applied = w.applyChunked(ctx, "update", changes.ToUpdate, stats)
	stats.Updated = applied

	w.logger.Printf("Write complete: inserted=%d updated=%d skipped=%d errors=%d partial=%v",
		stats.Inserted, stats.Updated, stats.Skipped, len(stats.Errors), stats.Partial)

	return stats
}

// applyChunked submits nodes in batchSize chunks and returns how many
// rows were written. Chunk failures fall back to per-record writes.
func (w *Writer) applyChunked(ctx context.Context, stage string, nodes []*mirror.Node, stats *WriteStats) int {
	var done int

	for i := 0; i < len(nodes); i += w.batchSize {
		if err := ctx.Err(); err != nil {
			stats.Partial = true
			w.logger.Printf("Deadline expired during %s: %d of %d rows written", stage, done, len(nodes))
			return done
		}

		end := i + w.batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		chunk := nodes[i:end]
		batchIndex := i/w.batchSize + 1

		if err := w.store.UpsertBatch(ctx, chunk); err != nil {
			// A batch that died with the context is not a bad-record
			// problem; retrying each row would just collect the same
			// deadline error 50 times over.
			if ctx.Err() != nil {
				stats.Partial = true
				w.logger.Printf("Deadline expired during %s batch %d: %d of %d rows written",
					stage, batchIndex, done, len(nodes))
				return done
			}
			w.logger.Printf("WARNING: %s batch %d failed (%d rows), retrying per record: %v",
				stage, batchIndex, len(chunk), err)
			done += w.applyPerRecord(ctx, stage, batchIndex, chunk, stats)
		} else {
			done += len(chunk)
		}

		if w.progress != nil {
			w.progress(Event{
				Stage:     stage,
				Batch:     batchIndex,
				BatchSize: len(chunk),
				Done:      done,
				Total:     len(nodes),
			})
		}
	}

	return done
}

// applyPerRecord isolates a failed chunk down to individual rows.
func (w *Writer) applyPerRecord(ctx context.Context, stage string, batchIndex int, chunk []*mirror.Node, stats *WriteStats) int {
	var done int

	for _, n := range chunk {
		if err := w.store.UpsertNode(ctx, n); err != nil {
			w.logger.Printf("WARNING: %s of %s failed in batch %d: %v", stage, n.RemoteID, batchIndex, err)
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		done++
	}

	return done
}
