package world

import (
	"fmt"
	"sort"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func (w *World) joinObserver(req JoinRequest, tick uint64) JoinResponse {
	name := req.Name
	if name == "" {
		name = "observer"
	}
	id := fmt.Sprintf("O%d", w.nextObserverNum.Add(1))

	pos := w.cfg.Spawn
	if req.Pos != nil {
		pos = *req.Pos
	}
	radius := req.Radius
	if radius < 0 {
		radius = w.cfg.DefaultRadius
	}

	w.observers[id] = &Observer{
		ID:         id,
		Name:       name,
		Pos:        pos,
		Radius:     radius,
		PrevRadius: radius,
		out:        req.Out,
	}

	return JoinResponse{
		ObserverID: id,
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			ObserverID:      id,
			Tick:            tick,
			Pos:             [3]float64{pos.X, pos.Y, pos.Z},
			Radius:          radius,
			WorldParams: protocol.WorldParams{
				TickIntervalMs:   int(w.cfg.TickInterval.Milliseconds()),
				ChunkSize:        [3]int{store.ChunkSizeX, store.ChunkSizeZ, w.cfg.Height},
				Height:           w.cfg.Height,
				YOffset:          w.cfg.YOffset,
				ViewRadiusMargin: w.cfg.ViewRadiusMargin,
				Seed:             w.cfg.Seed,
			},
		},
	}
}

// applyMove updates an observer's position and radius. Position updates are
// ignored while a relocation is pending: the observer stays where it was
// until the destination is resident.
func (w *World) applyMove(m MoveRequest) {
	o := w.observers[m.ID]
	if o == nil {
		return
	}
	if m.Radius != nil && *m.Radius >= 0 {
		o.Radius = *m.Radius
	}
	if m.Pos != nil {
		if _, pending := w.relocations.Get(m.ID); !pending {
			o.Pos = *m.Pos
		}
	}
}

func (w *World) sortedObserverIDs() []string {
	ids := make([]string, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
