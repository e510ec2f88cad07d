package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// replay folds the SET_BLOCK audit log into the final block per position and
// checks it against an override store. With -apply the final values are
// written instead, which rebuilds a store (after moving from
// sqlite to postgres, or after the async writer dropped a batch).
func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory")
		auditDir  = flag.String("audit", "", "audit log dir (default: <data>/audit)")
		fromTick  = flag.Uint64("from_tick", 0, "first tick to replay (inclusive)")
		toTick    = flag.Uint64("to_tick", 0, "last tick to replay (inclusive, 0 = all)")
		apply     = flag.Bool("apply", false, "write the replayed blocks instead of verifying")
		driver    = flag.String("db", "sqlite", "override store: sqlite | postgres")
		dbPath    = flag.String("db_path", "", "sqlite path (default: <data>/world.sqlite)")
		pgDSN     = flag.String("pg_dsn", "", "postgres dsn (or set VS_PG_DSN)")
		yOffset   = flag.Int("y_offset", 64, "stored row y offset (tuning y_offset)")
		maxReport = flag.Int("max_report", 20, "mismatches to print")
	)
	flag.Parse()

	dir := strings.TrimSpace(*auditDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "audit")
	}
	end := *toTick
	if end == 0 {
		end = ^uint64(0)
	}
	final, n, err := replayAudit(dir, *fromTick, end)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Println("no SET_BLOCK entries in range")
		return
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "world.sqlite")
	}
	dsn := strings.TrimSpace(*pgDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("VS_PG_DSN"))
	}
	ctx := context.Background()
	layout := overrides.Layout{YOffset: *yOffset}
	st, err := overrides.Open(ctx, *driver, path, dsn, layout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	if *apply {
		writes := make([]overrides.Write, 0, len(final))
		for _, p := range sortedPositions(final) {
			writes = append(writes, layout.Locate(p[0], p[1], p[2], final[p]))
		}
		if err := st.WriteOverrides(ctx, writes); err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
		fmt.Printf("replay applied: entries=%d positions=%d\n", n, len(final))
		return
	}

	bad, err := verify(ctx, st, layout, final)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	if len(bad) == 0 {
		fmt.Printf("replay ok: entries=%d positions=%d\n", n, len(final))
		return
	}
	for i, m := range bad {
		if i >= *maxReport {
			fmt.Printf("... %d more\n", len(bad)-i)
			break
		}
		fmt.Printf("%d,%d,%d want=%s got=%s\n", m.Pos[0], m.Pos[1], m.Pos[2], gen.BlockName(m.Want), m.got())
	}
	fmt.Printf("replay mismatch: entries=%d positions=%d mismatched=%d\n", n, len(final), len(bad))
	os.Exit(1)
}

// replayAudit returns the last written block per position for SET_BLOCK
// entries in [from, to], in log order.
func replayAudit(dir string, from, to uint64) (map[[3]int]uint16, int, error) {
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return nil, 0, err
	}
	final := map[[3]int]uint16{}
	n := 0
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if e.Action != "SET_BLOCK" || e.Tick < from || e.Tick > to {
				return nil
			}
			n++
			final[e.Pos] = e.To
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
	}
	return final, n, nil
}

type mismatch struct {
	Pos     [3]int
	Want    uint16
	Got     uint16
	Missing bool
}

func (m mismatch) got() string {
	if m.Missing {
		return "<none>"
	}
	return gen.BlockName(m.Got)
}

// verify reads each touched chunk once and compares its stored rows against
// the replayed blocks.
func verify(ctx context.Context, r overrides.Reader, layout overrides.Layout, final map[[3]int]uint16) ([]mismatch, error) {
	type cell struct{ x, y, z int }
	chunks := map[store.ChunkCoord]map[cell]uint16{}
	var out []mismatch
	for _, p := range sortedPositions(final) {
		w := layout.Locate(p[0], p[1], p[2], final[p])
		rows, ok := chunks[w.Coord]
		if !ok {
			got, err := r.ReadOverrides(ctx, w.Coord)
			if err != nil {
				return nil, fmt.Errorf("chunk %d,%d: %w", w.Coord.X, w.Coord.Z, err)
			}
			rows = make(map[cell]uint16, len(got))
			for _, o := range got {
				rows[cell{o.X, o.Y, o.Z}] = o.Block
			}
			chunks[w.Coord] = rows
		}
		b, ok := rows[cell{w.X, w.Y, w.Z}]
		switch {
		case !ok:
			out = append(out, mismatch{Pos: p, Want: w.Block, Missing: true})
		case b != w.Block:
			out = append(out, mismatch{Pos: p, Want: w.Block, Got: b})
		}
	}
	return out, nil
}

func sortedPositions(m map[[3]int]uint16) [][3]int {
	out := make([][3]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		return a[0] < b[0]
	})
	return out
}
