package relay

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roomsSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	first_seen       TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen        TIMESTAMPTZ NOT NULL DEFAULT now(),
	peak_connections BIGINT NOT NULL DEFAULT 0
)`

// PgDirectory keeps the room list in PostgreSQL so every relay process behind
// the same Redis sees the same rooms.
type PgDirectory struct {
	pool *pgxpool.Pool
}

var _ Directory = &PgDirectory{}

// NewPgDirectory connects to url and creates the rooms table if needed.
func NewPgDirectory(ctx context.Context, url string) (*PgDirectory, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, roomsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}
	return &PgDirectory{pool: pool}, nil
}

func (d *PgDirectory) Touch(ctx context.Context, room string, connections int64) error {
	_, err := d.pool.Exec(ctx, `
INSERT INTO rooms (id, peak_connections) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET
	last_seen = now(),
	peak_connections = GREATEST(rooms.peak_connections, EXCLUDED.peak_connections)`,
		room, connections)
	return err
}

func (d *PgDirectory) Rooms(ctx context.Context) ([]Room, error) {
	rows, err := d.pool.Query(ctx, `
SELECT id, first_seen, last_seen, peak_connections
FROM rooms ORDER BY last_seen DESC, id LIMIT 100`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Room])
}

func (d *PgDirectory) Close() {
	d.pool.Close()
}
