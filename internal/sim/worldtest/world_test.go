package worldtest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func TestEditSurvivesEvictionAndRegeneration(t *testing.T) {
	h := Start(t)
	origin := store.ChunkCoord{}
	id := h.Join("builder", ChunkCenter(0, 0), 1)

	ch := h.WaitResident(origin)
	require.Equal(t, gen.Grass, ch.Get(3, YOffset, 3))

	res, err := h.World.SetBlock(h.Ctx, id, 3, 0, 3, gen.Stone)
	require.NoError(t, err)
	assert.True(t, res.Resident)
	assert.Equal(t, gen.Grass, res.From)

	h.Move(id, ChunkCenter(20, 0))
	h.WaitEvicted(origin)

	h.Move(id, ChunkCenter(0, 0))
	ch = h.WaitResident(origin)
	assert.Equal(t, gen.Stone, ch.Get(3, YOffset, 3))
}

func TestNonResidentEditReportsPreviousBlock(t *testing.T) {
	h := Start(t)
	far := store.ChunkOf(81, 81)

	res, err := h.World.SetBlock(h.Ctx, "admin", 81, -1, 81, gen.Stone)
	require.NoError(t, err)
	assert.False(t, res.Resident)
	assert.Equal(t, gen.Bedrock, res.From)

	res, err = h.World.SetBlock(h.Ctx, "admin", 81, -1, 81, gen.Dirt)
	require.NoError(t, err)
	assert.Equal(t, gen.Stone, res.From)

	h.Join("viewer", ChunkCenter(far.X, far.Z), 0)
	ch := h.WaitResident(far)
	lx, lz := store.LocalOf(81, 81)
	assert.Equal(t, gen.Dirt, ch.Get(lx, YOffset-1, lz))
}

func TestWalkingObserverStreamsAhead(t *testing.T) {
	h := Start(t)
	id := h.Join("walker", ChunkCenter(0, 0), 2)
	h.WaitResident(store.ChunkCoord{})

	for cx := 1; cx <= 6; cx++ {
		h.Move(id, ChunkCenter(cx, 0))
		h.WaitResident(store.ChunkCoord{X: cx + 2, Z: 0})
	}
	h.WaitEvicted(store.ChunkCoord{})
	m := h.WaitMetrics(func(m world.WorldMetrics) bool { return m.ResidentChunks == 13 })
	assert.Zero(t, m.Totals.Failed)
	assert.NotZero(t, m.Totals.Evicted)
}

func TestConcurrentObserversShareChunks(t *testing.T) {
	h := Start(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.World.Join(h.Ctx, world.JoinRequest{Name: fmt.Sprintf("o%d", i), Pos: ptr(ChunkCenter(0, 0)), Radius: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m := h.WaitMetrics(func(m world.WorldMetrics) bool {
		return m.Observers == 8 && m.ResidentChunks == 5 && m.InFlight == 0
	})
	assert.Equal(t, uint64(5), m.Totals.Submitted)
	assert.Equal(t, uint64(5), m.Totals.Inserted)
	assert.Zero(t, m.Totals.Discarded)
}

func TestRelocationCommitsAcrossTheWorld(t *testing.T) {
	h := Start(t)
	id := h.Join("traveler", ChunkCenter(0, 0), 1)

	require.NoError(t, h.World.Relocate(h.Ctx, id, ChunkCenter(100, -100)))
	m := h.WaitMetrics(func(m world.WorldMetrics) bool {
		return m.Totals.RelocationsCommitted == 1 && m.PendingRelocations == 0
	})
	assert.Zero(t, m.Totals.RelocationsExpired)
	h.WaitResident(store.ChunkCoord{X: 100, Z: -100})
	h.WaitEvicted(store.ChunkCoord{})
}

func TestStoppedWorldRefusesRequests(t *testing.T) {
	h := Start(t)
	h.Stop()

	_, err := h.World.Join(h.Ctx, world.JoinRequest{Name: "late"})
	assert.ErrorIs(t, err, world.ErrStopped)
	_, err = h.World.SetBlock(h.Ctx, "", 0, 0, 0, gen.Stone)
	assert.ErrorIs(t, err, world.ErrStopped)
}

func ptr[T any](v T) *T { return &v }
