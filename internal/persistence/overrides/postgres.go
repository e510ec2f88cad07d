package overrides

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"voxelstream.ai/internal/persistence/overrides/migrations"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

const pgUpsert = `INSERT INTO blocks (x, y, z, chunk_x, chunk_z, block_type)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (x, y, z, chunk_x, chunk_z) DO UPDATE SET block_type = EXCLUDED.block_type`

// Postgres stores overrides in a shared database.
type Postgres struct {
	pool   *pgxpool.Pool
	layout Layout
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// OpenPostgres migrates the schema and connects a pool.
func OpenPostgres(ctx context.Context, dsn string, layout Layout) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	if err := RunMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool, layout: layout}, nil
}

func (p *Postgres) ReadOverrides(ctx context.Context, c store.ChunkCoord) ([]Override, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT x, y, z, block_type FROM blocks WHERE chunk_x = $1 AND chunk_z = $2`, c.X, c.Z)
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

func (p *Postgres) WriteOverride(ctx context.Context, wx, wy, wz int, block uint16) error {
	return p.WriteOverrides(ctx, []Write{p.layout.Locate(wx, wy, wz, block)})
}

// WriteOverrides sends the batch as one pipelined transaction.
func (p *Postgres) WriteOverrides(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(pgUpsert, w.X, w.Y, w.Z, w.Coord.X, w.Coord.Z, int32(w.Block))
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := range writes {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert %d of %d: %w", i+1, len(writes), err)
			}
		}
		return br.Close()
	})
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
