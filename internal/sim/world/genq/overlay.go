package genq

import (
	"context"
	"fmt"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Synthesizer builds one chunk. It must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, c store.ChunkCoord) (*store.Chunk, error)
}

// Overlay generates base terrain and then applies stored overrides on top.
// Any read or decode failure fails the whole chunk: a chunk is never emitted
// with only part of its overrides applied.
type Overlay struct {
	Gen       gen.Generator
	Overrides overrides.Reader
}

func (o Overlay) Synthesize(ctx context.Context, c store.ChunkCoord) (*store.Chunk, error) {
	ch := o.Gen.Base(c)
	if o.Overrides == nil {
		return ch, nil
	}
	rows, err := o.Overrides.ReadOverrides(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read overrides %s: %w", c, err)
	}
	for _, r := range rows {
		if !gen.ValidBlock(r.Block) || !ch.InBounds(r.X, r.Y, r.Z) {
			return nil, fmt.Errorf("chunk %s cell (%d,%d,%d) block %d: %w", c, r.X, r.Y, r.Z, r.Block, overrides.ErrMalformedBlock)
		}
		ch.Set(r.X, r.Y, r.Z, r.Block)
	}
	return ch, nil
}

// SynthFunc adapts a function to Synthesizer.
type SynthFunc func(ctx context.Context, c store.ChunkCoord) (*store.Chunk, error)

func (f SynthFunc) Synthesize(ctx context.Context, c store.ChunkCoord) (*store.Chunk, error) {
	return f(ctx, c)
}
