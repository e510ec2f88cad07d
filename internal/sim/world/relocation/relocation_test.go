package relocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func TestPendingUntilResident(t *testing.T) {
	q := NewQueue(0)
	q.Request("a", geometry.Vec3d{X: 50, Y: 64, Z: 50}, 1)

	resident := map[store.ChunkCoord]bool{}
	positions := map[string]geometry.Vec3d{}
	commit := func(id string, p Pending) { positions[id] = p.Pos }
	isResident := func(c store.ChunkCoord) bool { return resident[c] }

	for tick := uint64(1); tick <= 4; tick++ {
		committed, expired := q.Process(tick, isResident, commit)
		assert.Empty(t, committed)
		assert.Empty(t, expired)
		assert.Empty(t, positions, "position must not change before the destination is resident")
	}

	resident[store.ChunkCoord{X: 3, Z: 3}] = true
	committed, _ := q.Process(5, isResident, commit)
	assert.Equal(t, []string{"a"}, committed)
	assert.Equal(t, geometry.Vec3d{X: 50, Y: 64, Z: 50}, positions["a"])
	assert.Equal(t, 0, q.Len())
}

func TestNewerRequestOverwrites(t *testing.T) {
	q := NewQueue(0)
	q.Request("a", geometry.Vec3d{X: 0, Z: 0}, 1)
	q.Request("a", geometry.Vec3d{X: -20, Z: 40}, 2)
	require.Equal(t, 1, q.Len())

	p, ok := q.Get("a")
	require.True(t, ok)
	assert.Equal(t, store.ChunkCoord{X: -2, Z: 2}, p.Dest)
	assert.Equal(t, uint64(2), p.RequestedTick)
	assert.Equal(t, []store.ChunkCoord{{X: -2, Z: 2}}, q.Destinations())
}

func TestRemoveDropsPending(t *testing.T) {
	q := NewQueue(0)
	q.Request("a", geometry.Vec3d{}, 1)
	q.Remove("a")
	committed, _ := q.Process(2, func(store.ChunkCoord) bool { return true }, func(string, Pending) {
		t.Fatal("removed entry committed")
	})
	assert.Empty(t, committed)
}

func TestMaxWaitExpires(t *testing.T) {
	q := NewQueue(3)
	q.Request("a", geometry.Vec3d{}, 10)
	never := func(store.ChunkCoord) bool { return false }
	noop := func(string, Pending) {}

	_, expired := q.Process(12, never, noop)
	assert.Empty(t, expired)
	_, expired = q.Process(13, never, noop)
	assert.Equal(t, []string{"a"}, expired)
	assert.Equal(t, 0, q.Len())
}

func TestProcessOrderIsStable(t *testing.T) {
	q := NewQueue(0)
	for _, id := range []string{"c", "a", "b"} {
		q.Request(id, geometry.Vec3d{}, 0)
	}
	var order []string
	q.Process(1, func(store.ChunkCoord) bool { return true }, func(id string, _ Pending) { order = append(order, id) })
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
