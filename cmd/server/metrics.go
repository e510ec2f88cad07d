package main

import (
	"fmt"
	"net/http"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world"
)

func metricsHandler(w *world.World, writer *overrides.AsyncWriter) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		gauge(rw, "voxelstream_world_tick", "Current world tick.", float64(tick))
		gauge(rw, "voxelstream_world_observers", "Connected observers.", float64(m.Observers))
		gauge(rw, "voxelstream_chunks_resident", "Resident chunk count.", float64(m.ResidentChunks))
		gauge(rw, "voxelstream_chunks_pinned", "Pinned chunk count.", float64(m.PinnedChunks))
		gauge(rw, "voxelstream_gen_in_flight", "Chunks submitted for generation and not yet drained.", float64(m.InFlight))
		gauge(rw, "voxelstream_gen_queue_depth", "Generation jobs waiting for a worker.", float64(m.GenQueueDepth))
		gauge(rw, "voxelstream_relocations_pending", "Relocations waiting for their destination.", float64(m.PendingRelocations))

		fmt.Fprintf(rw, "# HELP voxelstream_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelstream_world_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "voxelstream_world_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)
		fmt.Fprintf(rw, "voxelstream_world_queue_depth{queue=%q} %d\n", "move", m.QueueDepths.Move)
		fmt.Fprintf(rw, "voxelstream_world_queue_depth{queue=%q} %d\n", "relocate", m.QueueDepths.Relocate)
		fmt.Fprintf(rw, "voxelstream_world_queue_depth{queue=%q} %d\n", "set_block", m.QueueDepths.SetBlock)

		fmt.Fprintf(rw, "# HELP voxelstream_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_world_step_ms gauge\n")
		fmt.Fprintf(rw, "voxelstream_world_step_ms %.3f\n", m.StepMS)

		fmt.Fprintf(rw, "# HELP voxelstream_chunks_total Chunk lifecycle counters.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_chunks_total counter\n")
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "submitted", m.Totals.Submitted)
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "rejected", m.Totals.Rejected)
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "inserted", m.Totals.Inserted)
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "discarded", m.Totals.Discarded)
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "evicted", m.Totals.Evicted)
		fmt.Fprintf(rw, "voxelstream_chunks_total{event=%q} %d\n", "failed", m.Totals.Failed)

		fmt.Fprintf(rw, "# HELP voxelstream_relocations_total Relocation outcomes.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_relocations_total counter\n")
		fmt.Fprintf(rw, "voxelstream_relocations_total{outcome=%q} %d\n", "committed", m.Totals.RelocationsCommitted)
		fmt.Fprintf(rw, "voxelstream_relocations_total{outcome=%q} %d\n", "expired", m.Totals.RelocationsExpired)

		if writer != nil {
			written, failed := writer.Stats()
			gauge(rw, "voxelstream_overrides_pending", "Block overrides not yet committed.", float64(writer.Pending()))
			fmt.Fprintf(rw, "# HELP voxelstream_overrides_total Override cells per commit attempt outcome.\n")
			fmt.Fprintf(rw, "# TYPE voxelstream_overrides_total counter\n")
			fmt.Fprintf(rw, "voxelstream_overrides_total{result=%q} %d\n", "written", written)
			fmt.Fprintf(rw, "voxelstream_overrides_total{result=%q} %d\n", "failed", failed)
		}
	}
}

func gauge(rw http.ResponseWriter, name, help string, v float64) {
	fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
	fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	fmt.Fprintf(rw, "%s %g\n", name, v)
}
