// Package demand turns the current observer set into the chunk coordinates
// the world needs. It recomputes from scratch on every call.
package demand

import (
	"iter"
	"math"
	"sort"

	"voxelstream.ai/internal/sim/seq"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Viewer is the part of an observer that drives demand.
type Viewer struct {
	Center store.ChunkCoord
	Radius int
}

// Record is one chunk generation request.
type Record struct {
	Coord    store.ChunkCoord
	Priority uint16 // higher is more urgent
	Tick     uint64
}

// Set is a demand snapshot.
type Set map[store.ChunkCoord]struct{}

func (s Set) Has(c store.ChunkCoord) bool {
	_, ok := s[c]
	return ok
}

// Snapshot returns every coordinate within Radius+extra of some viewer.
func Snapshot(viewers []Viewer, extra int) Set {
	out := Set{}
	for _, v := range viewers {
		for c := range geometry.Viewable(v.Center, v.Radius+extra) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Priority maps a squared chunk distance to [0, 65535], nearest highest.
func Priority(distSq int) uint16 {
	if distSq < 0 {
		distSq = 0
	}
	return uint16(math.MaxUint16 / (1 + distSq))
}

// Aggregate interleaves every viewer's viewable sequence (radius widened by
// margin), drops coordinates for which exclude reports true (resident or in
// flight), deduplicates, and orders the survivors by priority. Equal
// priorities keep the first-seen order of the interleave.
func Aggregate(viewers []Viewer, margin int, exclude func(store.ChunkCoord) bool, tick uint64) []Record {
	if len(viewers) == 0 {
		return nil
	}
	sources := make([]iter.Seq[store.ChunkCoord], 0, len(viewers))
	for _, v := range viewers {
		sources = append(sources, geometry.Viewable(v.Center, v.Radius+margin))
	}
	coords := seq.Interleave(sources...)
	if exclude != nil {
		coords = seq.Filter(coords, func(c store.ChunkCoord) bool { return !exclude(c) })
	}

	var out []Record
	for c := range seq.Dedup(coords) {
		out = append(out, Record{
			Coord:    c,
			Priority: Priority(nearestDistSq(viewers, c, margin)),
			Tick:     tick,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// nearestDistSq only counts viewers whose widened radius covers c.
func nearestDistSq(viewers []Viewer, c store.ChunkCoord, margin int) int {
	best := math.MaxInt
	for _, v := range viewers {
		if !geometry.Contains(v.Center, c, v.Radius+margin) {
			continue
		}
		if d := geometry.DistSq(v.Center, c); d < best {
			best = d
		}
	}
	return best
}
