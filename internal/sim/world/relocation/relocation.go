// Package relocation defers observer moves until the destination chunk is
// resident.
package relocation

import (
	"sort"

	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type Pending struct {
	Dest          store.ChunkCoord
	Pos           geometry.Vec3d
	RequestedTick uint64
}

// Queue holds at most one pending relocation per observer. It is owned by the
// world loop.
type Queue struct {
	// MaxWaitTicks > 0 drops entries that have waited that long.
	MaxWaitTicks uint64

	pending map[string]Pending
}

func NewQueue(maxWaitTicks uint64) *Queue {
	return &Queue{MaxWaitTicks: maxWaitTicks, pending: map[string]Pending{}}
}

// Request records a move to pos. A newer request replaces an uncommitted one.
func (q *Queue) Request(id string, pos geometry.Vec3d, tick uint64) Pending {
	p := Pending{Dest: geometry.ChunkAt(pos), Pos: pos, RequestedTick: tick}
	q.pending[id] = p
	return p
}

func (q *Queue) Remove(id string) { delete(q.pending, id) }

func (q *Queue) Get(id string) (Pending, bool) {
	p, ok := q.pending[id]
	return p, ok
}

func (q *Queue) Len() int { return len(q.pending) }

// Destinations lists the chunks pending entries are waiting on.
func (q *Queue) Destinations() []store.ChunkCoord {
	seen := map[store.ChunkCoord]struct{}{}
	out := make([]store.ChunkCoord, 0, len(q.pending))
	for _, p := range q.pending {
		if _, ok := seen[p.Dest]; ok {
			continue
		}
		seen[p.Dest] = struct{}{}
		out = append(out, p.Dest)
	}
	return out
}

// Process commits every entry whose destination is resident and removes it.
// Entries are visited in observer id order. Entries older than MaxWaitTicks
// are dropped without calling commit.
func (q *Queue) Process(tick uint64, resident func(store.ChunkCoord) bool, commit func(id string, p Pending)) (committed, expired []string) {
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := q.pending[id]
		if resident(p.Dest) {
			commit(id, p)
			delete(q.pending, id)
			committed = append(committed, id)
			continue
		}
		if q.MaxWaitTicks > 0 && tick >= p.RequestedTick+q.MaxWaitTicks {
			delete(q.pending, id)
			expired = append(expired, id)
		}
	}
	return committed, expired
}
