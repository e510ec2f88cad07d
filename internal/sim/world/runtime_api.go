package world

import (
	"context"
	"fmt"

	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// request hands v to the world loop. It fails with ErrStopped once the loop
// has exited, so callers never block on a dead world.
func request[T any](ctx context.Context, w *World, ch chan T, v T) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}
	select {
	case ch <- v:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, w *World, ch chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-w.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Join registers an observer. The response arrives after the next tick
// boundary.
func (w *World) Join(ctx context.Context, req JoinRequest) (JoinResponse, error) {
	req.Resp = make(chan JoinResponse, 1)
	if err := request(ctx, w, w.join, req); err != nil {
		return JoinResponse{}, err
	}
	return await(ctx, w, req.Resp)
}

func (w *World) Leave(ctx context.Context, id string) error {
	return request(ctx, w, w.leave, id)
}

func (w *World) Move(ctx context.Context, m MoveRequest) error {
	return request(ctx, w, w.move, m)
}

// Relocate asks for the observer to be moved to pos once the destination
// chunk is resident. A second request replaces the first.
func (w *World) Relocate(ctx context.Context, id string, pos geometry.Vec3d) error {
	req := RelocateRequest{ID: id, Pos: pos, Resp: make(chan error, 1)}
	if err := request(ctx, w, w.relocate, req); err != nil {
		return err
	}
	err, werr := await(ctx, w, req.Resp)
	if werr != nil {
		return werr
	}
	return err
}

// SetBlock edits one block in world coordinates. The edit is persisted
// whether or not the containing chunk is resident.
func (w *World) SetBlock(ctx context.Context, actor string, x, y, z int, block uint16) (SetBlockResult, error) {
	req := setBlockReq{Actor: actor, X: x, Y: y, Z: z, Block: block, Resp: make(chan setBlockResp, 1)}
	if err := request(ctx, w, w.setBlock, req); err != nil {
		return SetBlockResult{}, err
	}
	resp, err := await(ctx, w, req.Resp)
	if err != nil {
		return SetBlockResult{}, err
	}
	return resp.Result, resp.Err
}

// RequestChunk returns a copy of a resident chunk.
func (w *World) RequestChunk(ctx context.Context, c store.ChunkCoord) (*store.Chunk, bool, error) {
	req := chunkReq{Coord: c, Resp: make(chan chunkResp, 1)}
	if err := request(ctx, w, w.chunkReq, req); err != nil {
		return nil, false, err
	}
	resp, err := await(ctx, w, req.Resp)
	if err != nil {
		return nil, false, err
	}
	return resp.Chunk, resp.OK, nil
}

func (w *World) handleSetBlock(req setBlockReq) {
	res, err := w.applySetBlock(req)
	if req.Resp != nil {
		req.Resp <- setBlockResp{Result: res, Err: err}
	}
}

func (w *World) applySetBlock(req setBlockReq) (SetBlockResult, error) {
	tick := w.tick.Load()
	if !gen.ValidBlock(req.Block) {
		return SetBlockResult{}, fmt.Errorf("%w: %d", ErrInvalidBlock, req.Block)
	}
	ly := req.Y + w.cfg.YOffset
	if !w.chunks.InBounds(ly) {
		return SetBlockResult{}, fmt.Errorf("%w: y=%d", ErrOutOfBounds, req.Y)
	}

	coord := store.ChunkOf(req.X, req.Z)
	lx, lz := store.LocalOf(req.X, req.Z)
	// Resolve the previous block of a non-resident cell before the override
	// for this edit is written.
	var prev uint16
	fromUnknown := false
	if !w.chunks.Resident(coord) {
		prev, fromUnknown = w.rebuildBlock(coord, lx, ly, lz)
	}

	if w.writer != nil {
		if err := w.writer.WriteOverride(context.Background(), req.X, req.Y, req.Z, req.Block); err != nil {
			return SetBlockResult{}, err
		}
	}

	from, resident := w.chunks.SetBlock(req.X, ly, req.Z, req.Block)
	if !resident {
		from = prev
		if w.gen.InFlight(coord) {
			w.lateEdits[coord] = append(w.lateEdits[coord], lateEdit{x: lx, y: ly, z: lz, block: req.Block})
		}
	}
	w.totals.BlockEdits++

	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(AuditEntry{
			Tick:     tick,
			Actor:    req.Actor,
			Action:   "SET_BLOCK",
			Pos:      [3]int{req.X, req.Y, req.Z},
			From:     from,
			To:       req.Block,
			Resident: resident,

			FromUnknown: fromUnknown,
		})
	}
	return SetBlockResult{Tick: tick, From: from, Resident: resident}, nil
}

func (w *World) handleChunkReq(req chunkReq) {
	var resp chunkResp
	if ch, ok := w.chunks.Get(req.Coord); ok {
		resp = chunkResp{Chunk: ch.Clone(), OK: true}
	}
	req.Resp <- resp
}

// rebuildBlock reads one cell of a non-resident chunk from the block source.
// The bool is true when the cell could not be rebuilt.
// Edits still queued in lateEdits were already written through the writer,
// so the source sees them.
func (w *World) rebuildBlock(c store.ChunkCoord, lx, ly, lz int) (uint16, bool) {
	if w.blockSource == nil {
		return 0, true
	}
	ch, err := w.blockSource.Synthesize(context.Background(), c)
	if err != nil {
		w.logger.Printf("rebuild %s for edit: %v", c, err)
		return 0, true
	}
	return ch.Get(lx, ly, lz), false
}
