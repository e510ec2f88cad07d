package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/sim/tuning"
)

// openGateway opens the override store named by the database driver. The
// -db flag and VS_PG_DSN take precedence over tuning.yaml.
func openGateway(ctx context.Context, db tuning.Database, dataDir string, layout overrides.Layout, logger *log.Logger) (overrides.Store, error) {
	path := strings.TrimSpace(db.Path)
	if path == "" {
		path = filepath.Join(dataDir, "world.sqlite")
	}
	dsn := strings.TrimSpace(db.DSN)
	if v := strings.TrimSpace(os.Getenv("VS_PG_DSN")); v != "" {
		dsn = v
	}

	st, err := overrides.Open(ctx, db.Driver, path, dsn, layout)
	if err != nil {
		return nil, err
	}
	switch db.Driver {
	case "memory":
		logger.Printf("overrides: in-memory store (edits are lost on exit)")
	case "sqlite":
		logger.Printf("overrides: sqlite %s", path)
	default:
		logger.Printf("overrides: %s", db.Driver)
	}
	return st, nil
}
