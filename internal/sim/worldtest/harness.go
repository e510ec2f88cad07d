// Package worldtest runs a real world loop for black-box tests of the world
// and the transports built on it.
package worldtest

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/genq"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

const (
	Height  = 8
	YOffset = 4
)

// Quiet discards log output.
var Quiet = log.New(io.Discard, "", 0)

// Harness wires a flat generator (world y 0 is grass, y -1 bedrock), an
// in-memory override store behind an AsyncWriter, and a genq scheduler to a
// running world. Everything is stopped at test cleanup.
type Harness struct {
	T         *testing.T
	Ctx       context.Context
	World     *world.World
	Overrides *overrides.Memory
	Writer    *overrides.AsyncWriter
	Sched     *genq.Scheduler

	cancel    context.CancelFunc
	worldDone chan error
	schedDone chan error
	stopped   bool
}

// Option adjusts the world config before the world is created.
type Option func(*world.Config)

func WithPinnedRadius(r int) Option  { return func(c *world.Config) { c.PinnedRadius = r } }
func WithDefaultRadius(r int) Option { return func(c *world.Config) { c.DefaultRadius = r } }

func WithRelocationMaxWait(ticks uint64) Option {
	return func(c *world.Config) { c.RelocationMaxWaitTicks = ticks }
}

func Start(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	cfg := world.Config{
		TickInterval:  10 * time.Millisecond,
		DefaultRadius: 1,
		PinnedRadius:  -1,
		Height:        Height,
		YOffset:       YOffset,
		Spawn:         geometry.Vec3d{X: 0.5, Y: 1, Z: 0.5},
	}
	for _, o := range opts {
		o(&cfg)
	}

	layout := overrides.Layout{YOffset: YOffset}
	mem := overrides.NewMemory(layout)
	writer := overrides.NewAsyncWriter(mem, layout, Quiet)
	g, err := gen.New(gen.Config{Mode: gen.ModeFlat, Height: Height, SurfaceY: YOffset})
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	synth := genq.Overlay{Gen: g, Overrides: writer}
	sched := genq.NewScheduler(genq.Config{Workers: 2, QueueCapacity: 256}, synth, Quiet)
	w, err := world.New(cfg, sched, writer, Quiet)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	w.SetBlockSource(synth)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{
		T:         t,
		Ctx:       ctx,
		World:     w,
		Overrides: mem,
		Writer:    writer,
		Sched:     sched,
		cancel:    cancel,
		worldDone: make(chan error, 1),
		schedDone: make(chan error, 1),
	}
	go func() { _ = writer.Run(ctx) }()
	go func() { h.schedDone <- sched.Run(ctx) }()
	go func() { h.worldDone <- w.Run(ctx) }()
	t.Cleanup(h.Stop)
	return h
}

// Stop halts the world, then the scheduler and writer, and reports loop
// errors.
func (h *Harness) Stop() {
	if h.stopped {
		return
	}
	h.stopped = true
	h.World.Stop()
	if err := <-h.worldDone; err != nil {
		h.T.Errorf("world.Run: %v", err)
	}
	h.Sched.Close()
	// Workers blocked on a full results queue exit on cancel.
	h.cancel()
	if err := <-h.schedDone; err != nil {
		h.T.Errorf("scheduler.Run: %v", err)
	}
}

// ChunkCenter is the block-space center of chunk (cx, cz) at world y 1.
func ChunkCenter(cx, cz int) geometry.Vec3d {
	return geometry.Vec3d{X: float64(cx*16 + 8), Y: 1, Z: float64(cz*16 + 8)}
}

func (h *Harness) Join(name string, pos geometry.Vec3d, radius int) string {
	h.T.Helper()
	resp, err := h.World.Join(h.Ctx, world.JoinRequest{Name: name, Pos: &pos, Radius: radius})
	if err != nil {
		h.T.Fatalf("join %s: %v", name, err)
	}
	return resp.ObserverID
}

func (h *Harness) Move(id string, pos geometry.Vec3d) {
	h.T.Helper()
	if err := h.World.Move(h.Ctx, world.MoveRequest{ID: id, Pos: &pos}); err != nil {
		h.T.Fatalf("move %s: %v", id, err)
	}
}

// WaitResident polls until c is resident and returns a copy of it.
func (h *Harness) WaitResident(c store.ChunkCoord) *store.Chunk {
	h.T.Helper()
	var ch *store.Chunk
	h.waitFor(func() bool {
		got, ok, err := h.World.RequestChunk(h.Ctx, c)
		if err != nil || !ok {
			return false
		}
		ch = got
		return true
	}, "chunk %s never became resident", c)
	return ch
}

// WaitEvicted polls until c is no longer resident.
func (h *Harness) WaitEvicted(c store.ChunkCoord) {
	h.T.Helper()
	h.waitFor(func() bool {
		_, ok, err := h.World.RequestChunk(h.Ctx, c)
		return err == nil && !ok
	}, "chunk %s was never evicted", c)
}

// WaitMetrics polls until cond holds for the published metrics.
func (h *Harness) WaitMetrics(cond func(world.WorldMetrics) bool) world.WorldMetrics {
	h.T.Helper()
	var m world.WorldMetrics
	h.waitFor(func() bool {
		m = h.World.Metrics()
		return cond(m)
	}, "metrics condition never held")
	return m
}

func (h *Harness) waitFor(cond func() bool, format string, args ...any) {
	h.T.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.T.Fatalf(format, args...)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
