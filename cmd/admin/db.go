package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type storeFlags struct {
	driver  *string
	path    *string
	dsn     *string
	yOffset *int
}

func registerStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		driver:  fs.String("db", "sqlite", "override store: sqlite | postgres"),
		path:    fs.String("db_path", "", "sqlite path (default: <data>/world.sqlite)"),
		dsn:     fs.String("pg_dsn", "", "postgres dsn (or set VS_PG_DSN)"),
		yOffset: fs.Int("y_offset", 64, "stored row y offset (tuning y_offset)"),
	}
}

func (f storeFlags) open(ctx context.Context, dataDir string) (overrides.Store, overrides.Layout) {
	layout := overrides.Layout{YOffset: *f.yOffset}
	path := strings.TrimSpace(*f.path)
	if path == "" {
		path = filepath.Join(dataDir, "world.sqlite")
	}
	dsn := strings.TrimSpace(*f.dsn)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("VS_PG_DSN"))
	}
	st, err := overrides.Open(ctx, *f.driver, path, dsn, layout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return st, layout
}

type overrideRow struct {
	Pos   [3]int `json:"pos"`
	Local [3]int `json:"local"`
	Block string `json:"block"`
	ID    uint16 `json:"id"`
}

// overridesCmd lists the stored overrides of one chunk in world coordinates.
func overridesCmd(args []string) {
	fs := flag.NewFlagSet("overrides", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	cx := fs.Int("x", 0, "chunk x")
	cz := fs.Int("z", 0, "chunk z")
	sf := registerStoreFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	st, layout := sf.open(ctx, *dataDir)
	defer st.Close()

	c := store.ChunkCoord{X: *cx, Z: *cz}
	rows, err := st.ReadOverrides(ctx, c)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, o := range rows {
		wx, wy, wz := layout.World(c, o)
		printJSON(overrideRow{
			Pos:   [3]int{wx, wy, wz},
			Local: [3]int{o.X, o.Y, o.Z},
			Block: gen.BlockName(o.Block),
			ID:    o.Block,
		})
	}
}

// setCmd writes one override directly to the store.
func setCmd(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	pos := fs.String("pos", "", "world block position x,y,z (required)")
	block := fs.String("block", "", "block name, e.g. STONE (required)")
	sf := registerStoreFlags(fs)
	_ = fs.Parse(args)

	p, err := parseVec3(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	b, ok := gen.BlockByName(strings.ToUpper(strings.TrimSpace(*block)))
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -block:", *block)
		os.Exit(2)
	}

	ctx := context.Background()
	st, _ := sf.open(ctx, *dataDir)
	defer st.Close()
	if err := st.WriteOverride(ctx, p[0], p[1], p[2], b); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("set %d,%d,%d = %s\n", p[0], p[1], p[2], gen.BlockName(b))
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	sf := registerStoreFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	st, _ := sf.open(ctx, *dataDir)
	defer st.Close()
	n, err := st.Count(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "count:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{"overrides": n})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
