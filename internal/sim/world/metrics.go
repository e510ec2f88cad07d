package world

import "voxelstream.ai/internal/sim/world/genq"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Observers          int `json:"observers"`
	ResidentChunks     int `json:"resident_chunks"`
	PinnedChunks       int `json:"pinned_chunks"`
	InFlight           int `json:"in_flight"`
	GenQueueDepth      int `json:"gen_queue_depth"`
	PendingRelocations int `json:"pending_relocations"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Totals Totals `json:"totals"`
}

type QueueDepths struct {
	Join     int `json:"join"`
	Leave    int `json:"leave"`
	Move     int `json:"move"`
	Relocate int `json:"relocate"`
	SetBlock int `json:"set_block"`
}

// Totals are counters since process start.
type Totals struct {
	Submitted            uint64 `json:"submitted"`
	Inserted             uint64 `json:"inserted"`
	Discarded            uint64 `json:"discarded"`
	Evicted              uint64 `json:"evicted"`
	Failed               uint64 `json:"failed"`
	Rejected             uint64 `json:"rejected"`
	RelocationsCommitted uint64 `json:"relocations_committed"`
	RelocationsExpired   uint64 `json:"relocations_expired"`
	BlockEdits           uint64 `json:"block_edits"`
}

func (t *Totals) add(e TickLogEntry) {
	t.Submitted += uint64(e.Submitted)
	t.Inserted += uint64(e.Inserted)
	t.Discarded += uint64(e.Discarded)
	t.Evicted += uint64(e.Evicted)
	t.Failed += uint64(e.Failed)
	t.RelocationsCommitted += uint64(len(e.RelocationsCommitted))
	t.RelocationsExpired += uint64(len(e.RelocationsExpired))
}

func (w *World) publishMetrics(tick uint64, e TickLogEntry, gs genq.Stats) {
	tot := w.totals
	tot.Rejected = gs.Rejected
	w.metrics.Store(WorldMetrics{
		Tick:               tick,
		Observers:          len(w.observers),
		ResidentChunks:     w.chunks.Len(),
		PinnedChunks:       w.chunks.PinnedLen(),
		InFlight:           gs.InFlight,
		GenQueueDepth:      gs.Queued,
		PendingRelocations: w.relocations.Len(),
		QueueDepths: QueueDepths{
			Join:     len(w.join),
			Leave:    len(w.leave),
			Move:     len(w.move),
			Relocate: len(w.relocate),
			SetBlock: len(w.setBlock),
		},
		StepMS: e.StepMS,
		Totals: tot,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
