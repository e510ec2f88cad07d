package gen

import (
	"fmt"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Block ids of the built-in palette.
const (
	Air uint16 = iota
	Bedrock
	Grass
	Dirt
	Stone
	Sand
	Gravel
	Log
	CoalOre
	IronOre
	CopperOre
	CrystalOre

	MaxBlock = CrystalOre
)

var blockNames = [...]string{
	Air:        "AIR",
	Bedrock:    "BEDROCK",
	Grass:      "GRASS",
	Dirt:       "DIRT",
	Stone:      "STONE",
	Sand:       "SAND",
	Gravel:     "GRAVEL",
	Log:        "LOG",
	CoalOre:    "COAL_ORE",
	IronOre:    "IRON_ORE",
	CopperOre:  "COPPER_ORE",
	CrystalOre: "CRYSTAL_ORE",
}

func ValidBlock(b uint16) bool { return b <= MaxBlock }

func BlockName(b uint16) string {
	if !ValidBlock(b) {
		return fmt.Sprintf("UNKNOWN_%d", b)
	}
	return blockNames[b]
}

// BlockByName is the inverse of BlockName for palette names.
func BlockByName(name string) (uint16, bool) {
	for i, n := range blockNames {
		if n == name {
			return uint16(i), true
		}
	}
	return 0, false
}

const (
	ModeFlat   = "flat"
	ModeBiomes = "biomes"
)

type Config struct {
	Mode   string
	Seed   int64
	Height int

	// Chunk-local layer of the surface; bedrock sits one layer below.
	SurfaceY int

	BiomeRegionSize                 int
	OreClusterProbScalePermille     int
	TerrainClusterProbScalePermille int
}

// Generator produces deterministic base terrain. It holds no mutable state
// and is safe for concurrent use by generation workers.
type Generator struct {
	cfg Config
}

func New(cfg Config) (Generator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeFlat
	}
	if cfg.Mode != ModeFlat && cfg.Mode != ModeBiomes {
		return Generator{}, fmt.Errorf("unknown worldgen mode %q", cfg.Mode)
	}
	if cfg.SurfaceY < 1 || cfg.SurfaceY >= cfg.Height {
		return Generator{}, fmt.Errorf("surface_y %d outside chunk height %d", cfg.SurfaceY, cfg.Height)
	}
	if cfg.BiomeRegionSize <= 0 {
		cfg.BiomeRegionSize = 256
	}
	return Generator{cfg: cfg}, nil
}

func (g Generator) Height() int { return g.cfg.Height }

// Base returns the base terrain for coord, before any stored override.
func (g Generator) Base(coord store.ChunkCoord) *store.Chunk {
	ch := store.NewChunk(coord, g.cfg.Height)
	sy := g.cfg.SurfaceY
	for z := 0; z < store.ChunkSizeZ; z++ {
		for x := 0; x < store.ChunkSizeX; x++ {
			ch.Set(x, sy-1, z, Bedrock)
			if g.cfg.Mode == ModeFlat {
				ch.Set(x, sy, z, Grass)
				continue
			}
			wx := coord.X*store.ChunkSizeX + x
			wz := coord.Z*store.ChunkSizeZ + z
			surface, decoration := g.column(wx, wz)
			ch.Set(x, sy, z, surface)
			if decoration != Air && sy+1 < g.cfg.Height {
				ch.Set(x, sy+1, z, decoration)
			}
		}
	}
	return ch
}

// column picks the surface block and an optional block placed on top of it.
func (g Generator) column(wx, wz int) (surface, decoration uint16) {
	seed := g.cfg.Seed
	ore := g.cfg.OreClusterProbScalePermille
	terrain := g.cfg.TerrainClusterProbScalePermille

	switch {
	case InCluster(seed+101, wx, wz, 192, 2, ScalePermille(200, ore)):
		return CrystalOre, Air
	case InCluster(seed+102, wx, wz, 128, 3, ScalePermille(450, ore)):
		return IronOre, Air
	case InCluster(seed+103, wx, wz, 128, 3, ScalePermille(450, ore)):
		return CopperOre, Air
	case InCluster(seed+104, wx, wz, 64, 4, ScalePermille(650, ore)):
		return CoalOre, Air
	}

	switch BiomeAt(seed, wx, wz, g.cfg.BiomeRegionSize) {
	case Forest:
		switch {
		case InCluster(seed+201, wx, wz, 48, 4, ScalePermille(450, terrain)):
			return Grass, Log
		case InCluster(seed+202, wx, wz, 32, 4, ScalePermille(500, terrain)):
			return Stone, Air
		case InCluster(seed+203, wx, wz, 48, 3, ScalePermille(350, terrain)):
			return Dirt, Air
		}
		return Grass, Air
	case Desert:
		switch {
		case InCluster(seed+302, wx, wz, 32, 4, ScalePermille(450, terrain)):
			return Stone, Air
		case InCluster(seed+303, wx, wz, 96, 2, ScalePermille(200, terrain)):
			return Gravel, Air
		}
		return Sand, Air
	default:
		switch {
		case InCluster(seed+401, wx, wz, 48, 3, ScalePermille(400, terrain)):
			return Dirt, Air
		case InCluster(seed+402, wx, wz, 32, 4, ScalePermille(500, terrain)):
			return Stone, Air
		case InCluster(seed+403, wx, wz, 96, 2, ScalePermille(180, terrain)):
			return Gravel, Air
		}
		return Grass, Air
	}
}
