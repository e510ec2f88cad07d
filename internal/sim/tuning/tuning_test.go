package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, got.TickInterval())
	assert.Equal(t, 2, got.ViewRadiusMargin)
	assert.Equal(t, 64, got.YOffset)
	assert.Equal(t, "sqlite", got.Database.Driver)
	assert.Positive(t, got.WorkerPoolSize)
	require.NoError(t, got.Validate())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tick_interval_ms: 50
view_radius_margin: 0
worker_pool_size: 3
worldgen:
  mode: Biomes
  seed: 42
database:
  driver: postgres
  dsn: postgres://localhost/vs
`), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, got.TickInterval())
	assert.Equal(t, 0, got.ViewRadiusMargin)
	assert.Equal(t, 3, got.WorkerPoolSize)
	assert.Equal(t, "biomes", got.WorldGen.Mode)
	assert.Equal(t, int64(42), got.WorldGen.Seed)
	assert.Equal(t, 63, got.WorldGen.SurfaceY, "unset keys keep defaults")
	assert.Equal(t, "postgres", got.Database.Driver)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Tuning)
	}{
		{"zero tick", func(t *Tuning) { t.TickIntervalMs = 0 }},
		{"negative margin", func(t *Tuning) { t.ViewRadiusMargin = -1 }},
		{"y offset above height", func(t *Tuning) { t.YOffset = 300 }},
		{"unknown mode", func(t *Tuning) { t.WorldGen.Mode = "caves" }},
		{"unknown driver", func(t *Tuning) { t.Database.Driver = "mysql" }},
		{"surface above height", func(t *Tuning) { t.WorldGen.SurfaceY = 256 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.edit(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
