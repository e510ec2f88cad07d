package store

// Block coordinates here are chunk-local in y: 0 <= y < Height.

func (s *ChunkStore) InBounds(y int) bool {
	return y >= 0 && y < s.Height
}

// GetBlock reports ok=false when the containing chunk is not resident.
func (s *ChunkStore) GetBlock(x, y, z int) (uint16, bool) {
	if !s.InBounds(y) {
		return 0, false
	}
	ch, ok := s.chunks[ChunkOf(x, z)]
	if !ok {
		return 0, false
	}
	lx, lz := LocalOf(x, z)
	return ch.Get(lx, y, lz), true
}

// SetBlock updates a resident chunk in place and returns the previous block.
// It never generates: edits to non-resident chunks are the caller's to persist.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) (from uint16, ok bool) {
	if !s.InBounds(y) {
		return 0, false
	}
	ch, ok := s.chunks[ChunkOf(x, z)]
	if !ok {
		return 0, false
	}
	lx, lz := LocalOf(x, z)
	from = ch.Get(lx, y, lz)
	ch.Set(lx, y, lz, b)
	return from, true
}
