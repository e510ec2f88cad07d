package geometry

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

func TestChunkAt(t *testing.T) {
	tests := []struct {
		name string
		pos  Vec3d
		want store.ChunkCoord
	}{
		{"origin", Vec3d{0, 0.1, 0}, store.ChunkCoord{0, 0}},
		{"inside first chunk", Vec3d{15.99, 64, 0.5}, store.ChunkCoord{0, 0}},
		{"negative fraction", Vec3d{-0.5, 0, -0.01}, store.ChunkCoord{-1, -1}},
		{"negative boundary", Vec3d{-16, 0, -16.5}, store.ChunkCoord{-1, -2}},
		{"far", Vec3d{800, 0, -800}, store.ChunkCoord{50, -50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkAt(tt.pos))
		})
	}
}

func TestViewableMatchesDisc(t *testing.T) {
	center := store.ChunkCoord{X: 10, Z: -4}
	for r := 0; r <= 6; r++ {
		got := slices.Collect(Viewable(center, r))

		want := map[store.ChunkCoord]bool{}
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if dx*dx+dz*dz <= r*r {
					want[store.ChunkCoord{X: center.X + dx, Z: center.Z + dz}] = true
				}
			}
		}

		require.Len(t, got, len(want), "radius %d", r)
		seen := map[store.ChunkCoord]bool{}
		for _, c := range got {
			assert.True(t, want[c], "radius %d: unexpected %v", r, c)
			assert.False(t, seen[c], "radius %d: duplicate %v", r, c)
			seen[c] = true
		}
	}
}

func TestViewableNearestRingsFirst(t *testing.T) {
	center := store.ChunkCoord{}
	prev := 0
	for c := range Viewable(center, 5) {
		ring := max(abs(c.X), abs(c.Z))
		assert.GreaterOrEqual(t, ring, prev, "ring went backwards at %v", c)
		prev = ring
	}
}

func TestViewableIsRestartable(t *testing.T) {
	s := ViewableFrom(Vec3d{X: 40, Z: 40}, 3)
	first := slices.Collect(s)
	second := slices.Collect(s)
	assert.Equal(t, first, second)
	assert.Equal(t, store.ChunkCoord{2, 2}, first[0])
}

func TestViewableNegativeRadius(t *testing.T) {
	assert.Empty(t, slices.Collect(Viewable(store.ChunkCoord{}, -1)))
	assert.Equal(t, []store.ChunkCoord{{0, 0}}, slices.Collect(Viewable(store.ChunkCoord{}, 0)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
