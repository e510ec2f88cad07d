package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkOfNegativeCoords(t *testing.T) {
	tests := []struct {
		bx, bz int
		want   ChunkCoord
		lx, lz int
	}{
		{0, 0, ChunkCoord{0, 0}, 0, 0},
		{15, 15, ChunkCoord{0, 0}, 15, 15},
		{16, -1, ChunkCoord{1, -1}, 0, 15},
		{-16, -17, ChunkCoord{-1, -2}, 0, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkOf(tt.bx, tt.bz), "ChunkOf(%d,%d)", tt.bx, tt.bz)
		lx, lz := LocalOf(tt.bx, tt.bz)
		assert.Equal(t, [2]int{tt.lx, tt.lz}, [2]int{lx, lz}, "LocalOf(%d,%d)", tt.bx, tt.bz)
	}
}

func TestApplyInsertsDiscardsUnwanted(t *testing.T) {
	s := NewChunkStore(4)
	wanted := map[ChunkCoord]bool{{X: 0, Z: 0}: true}

	inserted, discarded := s.ApplyInserts([]Generated{
		{Coord: ChunkCoord{0, 0}, Chunk: NewChunk(ChunkCoord{0, 0}, 4)},
		{Coord: ChunkCoord{10, 12}, Chunk: NewChunk(ChunkCoord{10, 12}, 4)},
	}, func(c ChunkCoord) bool { return wanted[c] })

	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, discarded)
	assert.True(t, s.Resident(ChunkCoord{0, 0}))
	assert.False(t, s.Resident(ChunkCoord{10, 12}))
}

func TestApplyInsertsKeepsExistingChunk(t *testing.T) {
	s := NewChunkStore(4)
	first := NewChunk(ChunkCoord{1, 1}, 4)
	first.Set(0, 0, 0, 9)
	all := func(ChunkCoord) bool { return true }

	s.ApplyInserts([]Generated{{Coord: ChunkCoord{1, 1}, Chunk: first}}, all)
	_, discarded := s.ApplyInserts([]Generated{{Coord: ChunkCoord{1, 1}, Chunk: NewChunk(ChunkCoord{1, 1}, 4)}}, all)

	assert.Equal(t, 1, discarded)
	got, ok := s.Get(ChunkCoord{1, 1})
	require.True(t, ok)
	assert.Equal(t, uint16(9), got.Get(0, 0, 0))
}

func TestEvictUnlessHonorsPinsAndKeep(t *testing.T) {
	s := NewChunkStore(1)
	all := func(ChunkCoord) bool { return true }
	for _, c := range []ChunkCoord{{0, 0}, {1, 0}, {2, 0}, {3, 0}} {
		s.ApplyInserts([]Generated{{Coord: c, Chunk: NewChunk(c, 1)}}, all)
	}
	s.Pin(ChunkCoord{0, 0})
	s.MarkViewed(func(c ChunkCoord) bool { return c == ChunkCoord{2, 0} })

	evicted := s.EvictUnless(func(c ChunkCoord, ch *Chunk) bool {
		return c == ChunkCoord{1, 0} || ch.Viewed
	})

	assert.Equal(t, []ChunkCoord{{3, 0}}, evicted)
	assert.Equal(t, []ChunkCoord{{0, 0}, {1, 0}, {2, 0}}, s.Keys())
}

func TestSetBlockOnlyTouchesResidentChunks(t *testing.T) {
	s := NewChunkStore(8)
	s.ApplyInserts([]Generated{{Coord: ChunkCoord{-1, 0}, Chunk: NewChunk(ChunkCoord{-1, 0}, 8)}}, nil)
	// nil wanted never inserts unpinned chunks
	assert.Equal(t, 0, s.Len())

	s.Pin(ChunkCoord{-1, 0})
	s.ApplyInserts([]Generated{{Coord: ChunkCoord{-1, 0}, Chunk: NewChunk(ChunkCoord{-1, 0}, 8)}}, nil)
	require.Equal(t, 1, s.Len())

	from, ok := s.SetBlock(-1, 3, 5, 7)
	require.True(t, ok)
	assert.Equal(t, uint16(0), from)
	b, ok := s.GetBlock(-1, 3, 5)
	require.True(t, ok)
	assert.Equal(t, uint16(7), b)

	_, ok = s.SetBlock(40, 3, 5, 7)
	assert.False(t, ok)
	_, ok = s.SetBlock(-1, 8, 5, 7)
	assert.False(t, ok)
}

func TestDigestTracksEdits(t *testing.T) {
	ch := NewChunk(ChunkCoord{}, 2)
	d0 := ch.Digest()
	ch.Set(1, 1, 1, 3)
	d1 := ch.Digest()
	assert.NotEqual(t, d0, d1)
	clone := ch.Clone()
	assert.Equal(t, d1, clone.Digest())
	clone.Set(1, 1, 1, 4)
	assert.Equal(t, uint16(3), ch.Get(1, 1, 1))
}

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct {
		a, b     int
		div, mod int
	}{
		{a: 0, b: 16, div: 0, mod: 0},
		{a: 15, b: 16, div: 0, mod: 15},
		{a: 16, b: 16, div: 1, mod: 0},
		{a: -1, b: 16, div: -1, mod: 15},
		{a: -16, b: 16, div: -1, mod: 0},
		{a: -17, b: 16, div: -2, mod: 15},
		{a: 7, b: -2, div: -4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.div, FloorDiv(tc.a, tc.b), "FloorDiv(%d, %d)", tc.a, tc.b)
		if tc.b > 0 {
			assert.Equal(t, tc.mod, Mod(tc.a, tc.b), "Mod(%d, %d)", tc.a, tc.b)
			assert.Equal(t, tc.a, FloorDiv(tc.a, tc.b)*tc.b+Mod(tc.a, tc.b))
		}
	}
}
