package store

import "sort"

// Generated pairs a freshly synthesized chunk with its coordinate.
type Generated struct {
	Coord ChunkCoord
	Chunk *Chunk
}

// ChunkStore is the authoritative map of resident chunks.
//
// It has a single writer: the world loop goroutine. ApplyInserts, EvictUnless,
// MarkViewed, Pin, Unpin and SetBlock must only be called from that goroutine.
// Other goroutines read chunk data through the world's request channel.
type ChunkStore struct {
	Height int

	chunks map[ChunkCoord]*Chunk
	pinned map[ChunkCoord]struct{}
}

func NewChunkStore(height int) *ChunkStore {
	return &ChunkStore{
		Height: height,
		chunks: map[ChunkCoord]*Chunk{},
		pinned: map[ChunkCoord]struct{}{},
	}
}

func (s *ChunkStore) Get(c ChunkCoord) (*Chunk, bool) {
	ch, ok := s.chunks[c]
	return ch, ok
}

func (s *ChunkStore) Resident(c ChunkCoord) bool {
	_, ok := s.chunks[c]
	return ok
}

func (s *ChunkStore) Len() int { return len(s.chunks) }

// Keys returns resident coordinates in (X, Z) order.
func (s *ChunkStore) Keys() []ChunkCoord {
	keys := make([]ChunkCoord, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Z < keys[j].Z
	})
	return keys
}

// ApplyInserts inserts every generated chunk whose coordinate is still wanted.
// Results for coordinates that dropped out of demand while generation was in
// flight are discarded instead of being inserted and evicted on the same turn.
// A coordinate that is already resident keeps its current chunk, which may
// carry in-memory edits.
func (s *ChunkStore) ApplyInserts(batch []Generated, wanted func(ChunkCoord) bool) (inserted, discarded int) {
	for _, g := range batch {
		if g.Chunk == nil {
			continue
		}
		if _, ok := s.chunks[g.Coord]; ok {
			discarded++
			continue
		}
		if !s.IsPinned(g.Coord) && (wanted == nil || !wanted(g.Coord)) {
			discarded++
			continue
		}
		g.Chunk.Coord = g.Coord
		s.chunks[g.Coord] = g.Chunk
		inserted++
	}
	return inserted, discarded
}

// EvictUnless removes every resident chunk that is neither pinned nor kept by
// keep, and returns the evicted coordinates in (X, Z) order.
func (s *ChunkStore) EvictUnless(keep func(ChunkCoord, *Chunk) bool) []ChunkCoord {
	var evicted []ChunkCoord
	for k, ch := range s.chunks {
		if _, ok := s.pinned[k]; ok {
			continue
		}
		if keep != nil && keep(k, ch) {
			continue
		}
		evicted = append(evicted, k)
	}
	for _, k := range evicted {
		delete(s.chunks, k)
	}
	sort.Slice(evicted, func(i, j int) bool {
		if evicted[i].X != evicted[j].X {
			return evicted[i].X < evicted[j].X
		}
		return evicted[i].Z < evicted[j].Z
	})
	return evicted
}

// MarkViewed recomputes the Viewed flag of every resident chunk.
func (s *ChunkStore) MarkViewed(viewed func(ChunkCoord) bool) {
	for k, ch := range s.chunks {
		ch.Viewed = viewed != nil && viewed(k)
	}
}

func (s *ChunkStore) Pin(c ChunkCoord)   { s.pinned[c] = struct{}{} }
func (s *ChunkStore) Unpin(c ChunkCoord) { delete(s.pinned, c) }

func (s *ChunkStore) IsPinned(c ChunkCoord) bool {
	_, ok := s.pinned[c]
	return ok
}

func (s *ChunkStore) PinnedLen() int { return len(s.pinned) }
