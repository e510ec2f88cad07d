package world

import (
	"context"
	"time"
)

// Run drives the world-mutation turn at the configured cadence. Joins,
// leaves, moves and relocation requests queue up between ticks and are
// applied together at the next tick boundary. It returns when ctx is done,
// Stop is called, or generation fails structurally.
func (w *World) Run(ctx context.Context) error {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	var in StepInput
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			in.Joins = append(in.Joins, req)
		case id := <-w.leave:
			in.Leaves = append(in.Leaves, id)
		case req := <-w.move:
			in.Moves = append(in.Moves, req)
		case req := <-w.relocate:
			in.Relocations = append(in.Relocations, req)
		case req := <-w.setBlock:
			w.handleSetBlock(req)
		case req := <-w.chunkReq:
			w.handleChunkReq(req)
		case <-ticker.C:
			if _, err := w.step(in); err != nil {
				w.logger.Printf("tick %d: %v", w.tick.Load(), err)
				return err
			}
			in.Joins = in.Joins[:0]
			in.Leaves = in.Leaves[:0]
			in.Moves = in.Moves[:0]
			in.Relocations = in.Relocations[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering as
// Run. It must not be called while Run is active.
func (w *World) StepOnce(in StepInput) (TickLogEntry, error) {
	return w.step(in)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
