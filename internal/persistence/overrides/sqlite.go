package overrides

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// SQLite stores overrides in a single local database file.
type SQLite struct {
	db     *sql.DB
	layout Layout
	once   sync.Once
}

func OpenSQLite(path string, layout Layout) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// Pragmas go in the DSN so every pooled connection gets them; generation
	// workers read concurrently while the async writer commits.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=temp_store(MEMORY)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db, layout: layout}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blocks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			block_type INTEGER NOT NULL,
			PRIMARY KEY (x, y, z, chunk_x, chunk_z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_chunk ON blocks(chunk_x, chunk_z);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) ReadOverrides(ctx context.Context, c store.ChunkCoord) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, z, block_type FROM blocks WHERE chunk_x = ? AND chunk_z = ?`, c.X, c.Z)
	if err != nil {
		return nil, fmt.Errorf("query overrides %s: %w", c, err)
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		var x, y, z, b int64
		if err := rows.Scan(&x, &y, &z, &b); err != nil {
			return nil, fmt.Errorf("scan override %s: %w", c, err)
		}
		o, err := decodeRow(x, y, z, b)
		if err != nil {
			return nil, fmt.Errorf("chunk %s row (%d,%d,%d): %w", c, x, y, z, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides %s: %w", c, err)
	}
	sortOverrides(out)
	return out, nil
}

func (s *SQLite) WriteOverride(ctx context.Context, wx, wy, wz int, block uint16) error {
	return s.WriteOverrides(ctx, []Write{s.layout.Locate(wx, wy, wz, block)})
}

// WriteOverrides upserts the batch in one transaction.
func (s *SQLite) WriteOverrides(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO blocks(x,y,z,chunk_x,chunk_z,block_type) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, w := range writes {
		if _, err := stmt.ExecContext(ctx, w.X, w.Y, w.Z, w.Coord.X, w.Coord.Z, int64(w.Block)); err != nil {
			return fmt.Errorf("upsert %s (%d,%d,%d): %w", w.Coord, w.X, w.Y, w.Z, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}
