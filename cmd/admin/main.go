package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "overrides":
		overridesCmd(args)
	case "set":
		setCmd(args)
	case "stats":
		statsCmd(args)
	case "ticks":
		ticksCmd(args)
	case "rollback":
		rollbackCmd(args)
	case "state":
		stateCmd(args)
	case "chunk":
		chunkCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <overrides|set|stats|ticks|rollback|state|chunk> [flags]")
}

// ticksCmd summarizes the per-tick log.
func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	failures := fs.Bool("failures", false, "print every tick with generation failures")
	_ = fs.Parse(args)

	files, err := persistlog.Files(filepath.Join(*dataDir, "ticks"), "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	var (
		n                   int
		last                world.TickLogEntry
		inserted, evicted   int
		failed, relocations int
		worstStep           float64
		worstStepTick       uint64
	)
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			n++
			last = e
			inserted += e.Inserted
			evicted += e.Evicted
			failed += e.Failed
			relocations += len(e.RelocationsCommitted)
			if e.StepMS > worstStep {
				worstStep, worstStepTick = e.StepMS, e.Tick
			}
			if *failures && e.Failed > 0 {
				fmt.Printf("tick=%d failed=%d chunks=%v\n", e.Tick, e.Failed, e.FailedChunks)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	if n == 0 {
		fmt.Println("no tick log entries")
		return
	}
	fmt.Printf("ticks=%d last_tick=%d resident=%d in_flight=%d inserted=%d evicted=%d failed=%d relocations=%d worst_step_ms=%.3f@%d\n",
		n, last.Tick, last.Resident, last.InFlight, inserted, evicted, failed, relocations, worstStep, worstStepTick)
}

// rollbackCmd restores the blocks that SET_BLOCK edits in an AABB replaced,
// by writing each position's pre-edit value back as an override. The server
// must not be running against the same store.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback changes since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback changes up to tick (inclusive, 0 = all)")
	dryRun := fs.Bool("dry_run", false, "print the plan without writing")
	sf := registerStoreFlags(fs)
	_ = fs.Parse(args)

	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}
	endTick := *toTick
	if endTick == 0 {
		endTick = ^uint64(0)
	}

	recs, err := readAudit(filepath.Join(*dataDir, "audit"), *sinceTick, endTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}
	plan, unknown := planRollback(recs)
	for _, pos := range unknown {
		fmt.Fprintf(os.Stderr, "skip %d,%d,%d: block before the first edit was not recorded\n", pos[0], pos[1], pos[2])
	}
	if *dryRun {
		for _, p := range plan {
			fmt.Printf("%d,%d,%d -> %d\n", p.Pos[0], p.Pos[1], p.Pos[2], p.Block)
		}
		return
	}

	ctx := context.Background()
	st, layout := sf.open(ctx, *dataDir)
	defer st.Close()
	writes := make([]overrides.Write, 0, len(plan))
	for _, p := range plan {
		writes = append(writes, layout.Locate(p.Pos[0], p.Pos[1], p.Pos[2], p.Block))
	}
	if err := st.WriteOverrides(ctx, writes); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: aabb=%s since=%d entries=%d positions=%d\n", *aabb, *sinceTick, len(recs), len(plan))
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

func readAudit(dir string, sinceTick, toTick uint64, min, max [3]int) ([]auditRec, error) {
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return nil, err
	}
	out := make([]auditRec, 0, 1024)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			seq++
			if e.Action != "SET_BLOCK" {
				return nil
			}
			if e.Tick < sinceTick || e.Tick > toTick {
				return nil
			}
			if !withinAABB(e.Pos, min, max) {
				return nil
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type restore struct {
	Pos   [3]int
	Block uint16
}

// planRollback returns, per position, the value before its earliest matching
// edit. Positions whose earliest edit has no known previous block are
// returned in unknown instead of being restored. Both are ordered by (y, z, x).
func planRollback(recs []auditRec) (plan []restore, unknown [][3]int) {
	earliest := map[[3]int]auditRec{}
	for _, r := range recs {
		cur, ok := earliest[r.Entry.Pos]
		if ok && (cur.Entry.Tick < r.Entry.Tick || (cur.Entry.Tick == r.Entry.Tick && cur.Seq < r.Seq)) {
			continue
		}
		earliest[r.Entry.Pos] = r
	}
	plan = make([]restore, 0, len(earliest))
	for pos, r := range earliest {
		if r.Entry.FromUnknown {
			unknown = append(unknown, pos)
			continue
		}
		plan = append(plan, restore{Pos: pos, Block: r.Entry.From})
	}
	sort.Slice(plan, func(i, j int) bool { return posLess(plan[i].Pos, plan[j].Pos) })
	sort.Slice(unknown, func(i, j int) bool { return posLess(unknown[i], unknown[j]) })
	return plan, unknown
}

func posLess(a, b [3]int) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	if a[2] != b[2] {
		return a[2] < b[2]
	}
	return a[0] < b[0]
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
