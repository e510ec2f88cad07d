package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

func TestFlatBaseIsGrassOverBedrock(t *testing.T) {
	g, err := New(Config{Mode: ModeFlat, Height: 128, SurfaceY: 63})
	require.NoError(t, err)

	ch := g.Base(store.ChunkCoord{X: -3, Z: 7})
	for z := 0; z < store.ChunkSizeZ; z++ {
		for x := 0; x < store.ChunkSizeX; x++ {
			assert.Equal(t, Grass, ch.Get(x, 63, z))
			assert.Equal(t, Bedrock, ch.Get(x, 62, z))
			assert.Equal(t, Air, ch.Get(x, 64, z))
		}
	}
}

func TestBiomesBaseIsDeterministic(t *testing.T) {
	cfg := Config{Mode: ModeBiomes, Seed: 1337, Height: 96, SurfaceY: 63, BiomeRegionSize: 64}
	g1, err := New(cfg)
	require.NoError(t, err)
	g2, err := New(cfg)
	require.NoError(t, err)

	for _, c := range []store.ChunkCoord{{X: 0, Z: 0}, {X: 5, Z: -9}, {X: -40, Z: 12}} {
		assert.Equal(t, g1.Base(c).Digest(), g2.Base(c).Digest(), "chunk %v", c)
	}
}

func TestBiomesSurfaceUsesPalette(t *testing.T) {
	g, err := New(Config{Mode: ModeBiomes, Seed: 7, Height: 96, SurfaceY: 63})
	require.NoError(t, err)
	ch := g.Base(store.ChunkCoord{X: 2, Z: 2})
	for z := 0; z < store.ChunkSizeZ; z++ {
		for x := 0; x < store.ChunkSizeX; x++ {
			b := ch.Get(x, 63, z)
			assert.True(t, ValidBlock(b))
			assert.NotEqual(t, Air, b)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Mode: "caves", Height: 64, SurfaceY: 10})
	assert.Error(t, err)
	_, err = New(Config{Mode: ModeFlat, Height: 64, SurfaceY: 64})
	assert.Error(t, err)
}

func TestBlockNames(t *testing.T) {
	b, ok := BlockByName("STONE")
	require.True(t, ok)
	assert.Equal(t, Stone, b)
	assert.Equal(t, "STONE", BlockName(Stone))
	assert.Equal(t, "UNKNOWN_99", BlockName(99))
}
