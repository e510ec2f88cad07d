package world

import (
	"encoding/json"
	"time"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world/demand"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/relocation"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// step runs one world-mutation turn:
//
//  1. leaves, joins, moves and relocation requests
//  2. relocations whose destination is already resident commit
//  3. finished generation results are drained and inserted if still demanded
//  4. chunks outside the retention set are evicted
//  5. fresh demand is aggregated and submitted to the generator
//  6. observers get STATUS, the tick is logged and metrics are published
//
// Relocations are checked before inserts, so a destination inserted on tick N
// commits on tick N+1.
func (w *World) step(in StepInput) (TickLogEntry, error) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	entry := TickLogEntry{Tick: nowTick}

	for _, id := range in.Leaves {
		if _, ok := w.observers[id]; ok {
			delete(w.observers, id)
			w.relocations.Remove(id)
			entry.Leaves = append(entry.Leaves, id)
		}
	}
	for _, req := range in.Joins {
		resp := w.joinObserver(req, nowTick)
		if req.Resp != nil {
			req.Resp <- resp
		}
		entry.Joins = append(entry.Joins, resp.ObserverID)
	}
	for _, m := range in.Moves {
		w.applyMove(m)
	}
	for _, r := range in.Relocations {
		var err error
		if _, ok := w.observers[r.ID]; ok {
			w.relocations.Request(r.ID, r.Pos, nowTick)
		} else {
			err = ErrUnknownObserver
		}
		if r.Resp != nil {
			r.Resp <- err
		}
	}

	committed, expired := w.relocations.Process(nowTick, w.chunks.Resident, func(id string, p relocation.Pending) {
		if o := w.observers[id]; o != nil {
			o.Pos = p.Pos
		}
	})
	for _, id := range expired {
		w.logger.Printf("relocation of %s expired after %d ticks", id, w.cfg.RelocationMaxWaitTicks)
	}
	entry.RelocationsCommitted = committed
	entry.RelocationsExpired = expired

	// Drain before computing demand so that released coordinates can be
	// resubmitted this tick. A structural error is returned after the
	// results already drained are applied.
	results, drainErr := w.gen.Drain(0)

	viewers := w.viewers()
	// Results are inserted only while still demanded; the grace band only
	// delays eviction of chunks already resident.
	wanted := demand.Snapshot(viewers, w.cfg.ViewRadiusMargin)
	retain := demand.Snapshot(viewers, w.cfg.ViewRadiusMargin+w.cfg.EvictionGraceChunks)

	batch := make([]store.Generated, 0, len(results))
	for _, r := range results {
		edits := w.lateEdits[r.Coord]
		delete(w.lateEdits, r.Coord)
		if r.Err != nil {
			entry.Failed++
			entry.FailedChunks = append(entry.FailedChunks, [2]int{r.Coord.X, r.Coord.Z})
			continue
		}
		for _, e := range edits {
			r.Chunk.Set(e.x, e.y, e.z, e.block)
		}
		batch = append(batch, store.Generated{Coord: r.Coord, Chunk: r.Chunk})
	}
	entry.Inserted, entry.Discarded = w.chunks.ApplyInserts(batch, wanted.Has)

	viewed := demand.Snapshot(w.observerViewers(), 0)
	w.chunks.MarkViewed(viewed.Has)
	evicted := w.chunks.EvictUnless(func(c store.ChunkCoord, ch *store.Chunk) bool {
		return retain.Has(c) || ch.Viewed
	})
	entry.Evicted = len(evicted)

	if drainErr != nil {
		return entry, drainErr
	}

	recs := demand.Aggregate(viewers, w.cfg.ViewRadiusMargin, func(c store.ChunkCoord) bool {
		return w.chunks.Resident(c) || w.gen.InFlight(c)
	}, nowTick)
	entry.Demanded = len(recs)
	for _, rec := range recs {
		if entry.Submitted >= w.cfg.GenerationBatchLimit {
			break
		}
		ok, err := w.gen.Submit(rec)
		if err != nil {
			return entry, err
		}
		if ok {
			entry.Submitted++
		}
	}

	w.sendStatus(nowTick)
	for _, o := range w.observers {
		if o.Radius != o.PrevRadius {
			w.logger.Printf("observer %s view radius %d -> %d", o.ID, o.PrevRadius, o.Radius)
		}
		o.PrevRadius = o.Radius
		o.PrevChunk = geometry.ChunkAt(o.Pos)
	}

	gs := w.gen.Stats()
	entry.Observers = len(w.observers)
	entry.Resident = w.chunks.Len()
	entry.InFlight = gs.InFlight
	entry.StepMS = float64(time.Since(stepStart).Microseconds()) / 1000.0
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(entry)
	}

	w.totals.add(entry)
	nextTick := w.tick.Add(1)
	w.publishMetrics(nextTick, entry, gs)
	return entry, nil
}

// viewers is every demand source: observers at their declared radius,
// pending relocation destinations, and the pinned origin area.
func (w *World) viewers() []demand.Viewer {
	out := w.observerViewers()
	for _, dest := range w.relocations.Destinations() {
		out = append(out, demand.Viewer{Center: dest, Radius: 0})
	}
	if w.cfg.PinnedRadius >= 0 {
		out = append(out, demand.Viewer{Center: store.ChunkCoord{}, Radius: w.cfg.PinnedRadius})
	}
	return out
}

func (w *World) observerViewers() []demand.Viewer {
	ids := w.sortedObserverIDs()
	out := make([]demand.Viewer, 0, len(ids))
	for _, id := range ids {
		o := w.observers[id]
		out = append(out, demand.Viewer{Center: geometry.ChunkAt(o.Pos), Radius: o.Radius})
	}
	return out
}

func (w *World) sendStatus(tick uint64) {
	for _, o := range w.observers {
		if o.out == nil {
			continue
		}
		center := geometry.ChunkAt(o.Pos)
		msg := protocol.StatusMsg{
			Type:            protocol.TypeStatus,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			ObserverID:      o.ID,
			Pos:             [3]float64{o.Pos.X, o.Pos.Y, o.Pos.Z},
			Radius:          o.Radius,
			Chunk:           [2]int{center.X, center.Z},
		}
		if p, ok := w.relocations.Get(o.ID); ok {
			msg.PendingRelocation = &[2]int{p.Dest.X, p.Dest.Z}
		}
		for c := range geometry.Viewable(center, o.Radius) {
			msg.Coverage.Total++
			if w.chunks.Resident(c) {
				msg.Coverage.Resident++
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(o.out, b)
	}
}
