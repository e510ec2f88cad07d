package overrides

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

const (
	flushBatch    = 2000
	flushMaxWait  = 2 * time.Second
	finalFlushTTL = 5 * time.Second
)

// AsyncWriter queues writes in memory and commits them to an inner Store in
// batches from its own goroutine. Reads merge the queue over the inner store,
// so a write is visible to every read that starts after WriteOverride returns.
type AsyncWriter struct {
	inner  Store
	layout Layout
	logger *log.Logger

	mu      sync.Mutex
	pending map[store.ChunkCoord]map[cellKey]uint16
	queued  int
	closed  bool

	wake chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewAsyncWriter(inner Store, layout Layout, logger *log.Logger) *AsyncWriter {
	if logger == nil {
		logger = log.New(log.Writer(), "[overrides] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &AsyncWriter{
		inner:   inner,
		layout:  layout,
		logger:  logger,
		pending: map[store.ChunkCoord]map[cellKey]uint16{},
		wake:    make(chan struct{}, 1),
	}
}

// WriteOverride records the block and returns without touching the inner store.
func (w *AsyncWriter) WriteOverride(ctx context.Context, wx, wy, wz int, block uint16) error {
	wr := w.layout.Locate(wx, wy, wz, block)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	cells := w.pending[wr.Coord]
	if cells == nil {
		cells = map[cellKey]uint16{}
		w.pending[wr.Coord] = cells
	}
	k := cellKey{wr.X, wr.Y, wr.Z}
	if _, ok := cells[k]; !ok {
		w.queued++
	}
	cells[k] = block
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// ReadOverrides snapshots the queue before reading the inner store; a queued
// entry wins over the stored row for the same cell.
func (w *AsyncWriter) ReadOverrides(ctx context.Context, c store.ChunkCoord) ([]Override, error) {
	w.mu.Lock()
	var queued map[cellKey]uint16
	if cells := w.pending[c]; len(cells) > 0 {
		queued = make(map[cellKey]uint16, len(cells))
		for k, b := range cells {
			queued[k] = b
		}
	}
	w.mu.Unlock()

	base, err := w.inner.ReadOverrides(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(queued) == 0 {
		return base, nil
	}
	out := make([]Override, 0, len(base)+len(queued))
	for _, o := range base {
		if _, ok := queued[cellKey{o.X, o.Y, o.Z}]; !ok {
			out = append(out, o)
		}
	}
	for k, b := range queued {
		out = append(out, Override{X: k.x, Y: k.y, Z: k.z, Block: b})
	}
	sortOverrides(out)
	return out, nil
}

// Pending reports how many cells are waiting for commit.
func (w *AsyncWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queued
}

func (w *AsyncWriter) Stats() (written, failed uint64) {
	return w.written.Load(), w.failed.Load()
}

// Flush commits everything queued at call time. Entries are dropped from the
// queue only after their batch commits, and only if not rewritten meanwhile.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	for {
		batch := w.collect(flushBatch)
		if len(batch) == 0 {
			return nil
		}
		if err := w.inner.WriteOverrides(ctx, batch); err != nil {
			w.failed.Add(uint64(len(batch)))
			return err
		}
		w.release(batch)
		w.written.Add(uint64(len(batch)))
		if len(batch) < flushBatch {
			return nil
		}
	}
}

func (w *AsyncWriter) collect(limit int) []Write {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Write
	for c, cells := range w.pending {
		for k, b := range cells {
			out = append(out, Write{Coord: c, Override: Override{X: k.x, Y: k.y, Z: k.z, Block: b}})
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (w *AsyncWriter) release(batch []Write) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, wr := range batch {
		cells := w.pending[wr.Coord]
		k := cellKey{wr.X, wr.Y, wr.Z}
		if b, ok := cells[k]; ok && b == wr.Block {
			delete(cells, k)
			w.queued--
			if len(cells) == 0 {
				delete(w.pending, wr.Coord)
			}
		}
	}
}

// Run commits queued writes until ctx is done, then refuses new writes and
// makes a final flush attempt.
func (w *AsyncWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushMaxWait)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if err := w.Flush(ctx); err != nil {
			w.logger.Printf("flush failed (%d pending): %v", w.Pending(), err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			fctx, cancel := context.WithTimeout(context.Background(), finalFlushTTL)
			flush(fctx)
			cancel()
			if n := w.Pending(); n > 0 {
				w.logger.Printf("shutdown with %d uncommitted overrides", n)
			}
			return nil
		case <-w.wake:
			flush(ctx)
		case <-ticker.C:
			flush(ctx)
		}
	}
}
