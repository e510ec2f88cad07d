package tuning

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`

	// Declared radius for observers that do not send one.
	ViewRadius int `yaml:"view_radius"`
	// Extra rings generated beyond the declared radius.
	ViewRadiusMargin int `yaml:"view_radius_margin"`
	// Extra rings kept resident beyond the generated radius.
	EvictionGraceChunks int `yaml:"eviction_grace_chunks"`

	WorkerPoolSize       int `yaml:"worker_pool_size"`
	QueueCapacity        int `yaml:"queue_capacity"`
	ResultsCapacity      int `yaml:"results_capacity"`
	GenerationBatchLimit int `yaml:"generation_batch_limit"`

	// Chunks within this radius of the origin are always resident; -1 disables.
	PinnedRadius int `yaml:"pinned_radius"`

	ChunkHeight int `yaml:"chunk_height"`
	YOffset     int `yaml:"y_offset"`

	// 0 waits forever.
	RelocationMaxWaitTicks int `yaml:"relocation_max_wait_ticks"`

	WorldGen WorldGen `yaml:"worldgen"`
	Database Database `yaml:"database"`
}

type WorldGen struct {
	Mode                            string `yaml:"mode"`
	Seed                            int64  `yaml:"seed"`
	SurfaceY                        int    `yaml:"surface_y"`
	BiomeRegionSize                 int    `yaml:"biome_region_size"`
	OreClusterProbScalePermille     int    `yaml:"ore_cluster_prob_scale_permille"`
	TerrainClusterProbScalePermille int    `yaml:"terrain_cluster_prob_scale_permille"`
}

type Database struct {
	Driver string `yaml:"driver"` // sqlite | postgres | memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

func Defaults() Tuning {
	return Tuning{
		TickIntervalMs:       200,
		ViewRadius:           8,
		ViewRadiusMargin:     2,
		WorkerPoolSize:       runtime.NumCPU(),
		QueueCapacity:        1_000_000,
		ResultsCapacity:      1_000_000,
		GenerationBatchLimit: 4096,
		PinnedRadius:         -1,
		ChunkHeight:          256,
		YOffset:              64,
		WorldGen: WorldGen{
			Mode:                            "flat",
			SurfaceY:                        63,
			BiomeRegionSize:                 256,
			OreClusterProbScalePermille:     1000,
			TerrainClusterProbScalePermille: 1000,
		},
		Database: Database{Driver: "sqlite"},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.WorkerPoolSize <= 0 {
		t.WorkerPoolSize = runtime.NumCPU()
	}
	if t.ResultsCapacity <= 0 {
		t.ResultsCapacity = t.QueueCapacity
	}
	t.WorldGen.Mode = strings.ToLower(strings.TrimSpace(t.WorldGen.Mode))
	if t.WorldGen.Mode == "" {
		t.WorldGen.Mode = "flat"
	}
	t.Database.Driver = strings.ToLower(strings.TrimSpace(t.Database.Driver))
	if t.Database.Driver == "" {
		t.Database.Driver = "sqlite"
	}
}

func (t Tuning) Validate() error {
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0")
	}
	if t.ViewRadius < 0 || t.ViewRadiusMargin < 0 || t.EvictionGraceChunks < 0 {
		return fmt.Errorf("view_radius, view_radius_margin and eviction_grace_chunks must be >= 0")
	}
	if t.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be > 0")
	}
	if t.GenerationBatchLimit <= 0 {
		return fmt.Errorf("generation_batch_limit must be > 0")
	}
	if t.PinnedRadius < -1 {
		return fmt.Errorf("pinned_radius must be >= -1")
	}
	if t.ChunkHeight <= 0 {
		return fmt.Errorf("chunk_height must be > 0")
	}
	if t.YOffset < 0 || t.YOffset >= t.ChunkHeight {
		return fmt.Errorf("y_offset must be in [0, chunk_height)")
	}
	if t.RelocationMaxWaitTicks < 0 {
		return fmt.Errorf("relocation_max_wait_ticks must be >= 0")
	}
	switch t.WorldGen.Mode {
	case "flat", "biomes":
	default:
		return fmt.Errorf("worldgen.mode must be flat or biomes, got %q", t.WorldGen.Mode)
	}
	if t.WorldGen.SurfaceY < 1 || t.WorldGen.SurfaceY >= t.ChunkHeight {
		return fmt.Errorf("worldgen.surface_y must be in [1, chunk_height)")
	}
	switch t.Database.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", t.Database.Driver)
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}
