// Package inspect serves read-only world state over HTTP for local tooling.
// Every handler refuses non-loopback callers.
package inspect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/encoding"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	Tick            uint64               `json:"tick"`
	WorldParams     protocol.WorldParams `json:"world_params"`
	BlockPalette    []string             `json:"block_palette"`
}

type ChunkResponse struct {
	Chunk  [2]int         `json:"chunk"`
	Digest string         `json:"digest"`
	Counts map[string]int `json:"counts"`
	// Surface is the highest non-air y (world coordinates) per column,
	// indexed x + z*16. Columns of only air report -1 - y_offset.
	Surface []int `json:"surface"`
	// Blocks is the full block array (index x + z*16 + y*256) packed with
	// encoding.Runs. Only present for ?blocks=1.
	Blocks string `json:"blocks,omitempty"`
}

type Server struct {
	world *world.World
	log   *log.Logger
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{world: w, log: logger}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !allow(rw, r) {
			return
		}
		cfg := s.world.Config()
		palette := make([]string, 0, gen.MaxBlock+1)
		for b := uint16(0); b <= gen.MaxBlock; b++ {
			palette = append(palette, gen.BlockName(b))
		}
		writeJSON(rw, BootstrapResponse{
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			WorldParams: protocol.WorldParams{
				TickIntervalMs:   int(cfg.TickInterval.Milliseconds()),
				ChunkSize:        [3]int{store.ChunkSizeX, store.ChunkSizeZ, cfg.Height},
				Height:           cfg.Height,
				YOffset:          cfg.YOffset,
				ViewRadiusMargin: cfg.ViewRadiusMargin,
				Seed:             cfg.Seed,
			},
			BlockPalette: palette,
		})
	}
}

// ChunkHandler answers GET ?x=&z=[&blocks=1] with a summary of a resident
// chunk, or 404.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !allow(rw, r) {
			return
		}
		x, errX := strconv.Atoi(r.URL.Query().Get("x"))
		z, errZ := strconv.Atoi(r.URL.Query().Get("z"))
		if errX != nil || errZ != nil {
			http.Error(rw, "x and z must be integers", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		ch, ok, err := s.world.RequestChunk(ctx, store.ChunkCoord{X: x, Z: z})
		switch {
		case errors.Is(err, world.ErrStopped):
			http.Error(rw, "world stopped", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(rw, err.Error(), http.StatusGatewayTimeout)
			return
		case !ok:
			http.Error(rw, "chunk not resident", http.StatusNotFound)
			return
		}
		resp := summarize(ch, s.world.Config().YOffset)
		if withBlocks, _ := strconv.ParseBool(r.URL.Query().Get("blocks")); withBlocks {
			resp.Blocks = encoding.Runs(ch.Blocks)
		}
		writeJSON(rw, resp)
	}
}

func summarize(ch *store.Chunk, yOffset int) ChunkResponse {
	digest := ch.Digest()
	resp := ChunkResponse{
		Chunk:   [2]int{ch.Coord.X, ch.Coord.Z},
		Digest:  hex.EncodeToString(digest[:]),
		Counts:  map[string]int{},
		Surface: make([]int, store.ChunkSizeX*store.ChunkSizeZ),
	}
	for z := 0; z < store.ChunkSizeZ; z++ {
		for x := 0; x < store.ChunkSizeX; x++ {
			top := -1
			for y := 0; y < ch.Height; y++ {
				b := ch.Get(x, y, z)
				resp.Counts[gen.BlockName(b)]++
				if b != gen.Air {
					top = y
				}
			}
			resp.Surface[x+z*store.ChunkSizeX] = top - yOffset
		}
	}
	return resp
}

func allow(rw http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
