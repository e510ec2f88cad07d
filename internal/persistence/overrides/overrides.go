// Package overrides persists per-block deviations from generated terrain.
//
// Rows are keyed by chunk column plus chunk-local (x, y, z), where the stored
// y is the world y shifted by Layout.YOffset so that it is never negative.
package overrides

import (
	"context"
	"errors"
	"sort"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

var (
	// ErrMalformedBlock marks a stored row that cannot be decoded into an override.
	ErrMalformedBlock = errors.New("malformed override block")
	// ErrClosed is returned by writes after the gateway was closed.
	ErrClosed = errors.New("override gateway closed")
)

// Override is one stored block, in chunk-local coordinates.
type Override struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}

// Write is an override addressed to its chunk.
type Write struct {
	Coord store.ChunkCoord
	Override
}

type Reader interface {
	ReadOverrides(ctx context.Context, c store.ChunkCoord) ([]Override, error)
}

type Writer interface {
	WriteOverride(ctx context.Context, wx, wy, wz int, block uint16) error
}

// Store is a durable backend.
type Store interface {
	Reader
	Writer
	WriteOverrides(ctx context.Context, writes []Write) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Layout converts world block coordinates into stored rows.
type Layout struct {
	YOffset int
}

func (l Layout) Locate(wx, wy, wz int, block uint16) Write {
	lx, lz := store.LocalOf(wx, wz)
	return Write{
		Coord:    store.ChunkOf(wx, wz),
		Override: Override{X: lx, Y: wy + l.YOffset, Z: lz, Block: block},
	}
}

// World converts a stored row back into world block coordinates.
func (l Layout) World(c store.ChunkCoord, o Override) (wx, wy, wz int) {
	return c.X*store.ChunkSizeX + o.X, o.Y - l.YOffset, c.Z*store.ChunkSizeZ + o.Z
}

func decodeRow(x, y, z, block int64) (Override, error) {
	if x < 0 || x >= store.ChunkSizeX || z < 0 || z >= store.ChunkSizeZ || y < 0 {
		return Override{}, ErrMalformedBlock
	}
	if block < 0 || block > 0xFFFF {
		return Override{}, ErrMalformedBlock
	}
	return Override{X: int(x), Y: int(y), Z: int(z), Block: uint16(block)}, nil
}

type cellKey struct{ x, y, z int }

func sortOverrides(out []Override) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return out[i].X < out[j].X
	})
}
