package inspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/sim/encoding"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/worldtest"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	return worldtest.Start(t, worldtest.WithPinnedRadius(0)).World
}

func get(h http.HandlerFunc, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBootstrap(t *testing.T) {
	s := NewServer(startWorld(t), worldtest.Quiet)

	rec := get(s.BootstrapHandler(), "/debug/bootstrap", "127.0.0.1:5000")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp BootstrapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.WorldParams.Height)
	assert.Equal(t, "AIR", resp.BlockPalette[0])
	assert.Contains(t, resp.BlockPalette, "STONE")
}

func TestRejectsRemoteCallers(t *testing.T) {
	s := NewServer(startWorld(t), worldtest.Quiet)
	rec := get(s.BootstrapHandler(), "/debug/bootstrap", "10.1.2.3:5000")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChunk(t *testing.T) {
	s := NewServer(startWorld(t), worldtest.Quiet)
	h := s.ChunkHandler()

	assert.Equal(t, http.StatusBadRequest, get(h, "/debug/chunk?x=a&z=0", "[::1]:5000").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/debug/chunk?x=40&z=40", "[::1]:5000").Code)

	// The origin is pinned, so it becomes resident without observers.
	var rec *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		rec = get(h, "/debug/chunk?x=0&z=0", "[::1]:5000")
		return rec.Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	var resp ChunkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, [2]int{0, 0}, resp.Chunk)
	assert.Len(t, resp.Digest, 64)
	assert.Len(t, resp.Surface, 256)
	assert.Equal(t, 0, resp.Surface[0])
	assert.Equal(t, 256, resp.Counts["GRASS"])
	assert.Empty(t, resp.Blocks)

	rec = get(h, "/debug/chunk?x=0&z=0&blocks=1", "[::1]:5000")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = ChunkResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	blocks, err := encoding.DecodeRuns(resp.Blocks, 16*16*8)
	require.NoError(t, err)
	assert.Equal(t, gen.Grass, blocks[4*256])
	assert.Equal(t, gen.Air, blocks[7*256+255])
}
