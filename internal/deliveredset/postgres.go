package deliveredset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS delivered_pairs (
	pair_key TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores the set in a shared database so several instances can
// serve the same contest.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, errors.New("postgres backend requires DATABASE_URL")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return BackendPostgres }

func (p *Postgres) Load(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT pair_key FROM delivered_pairs ORDER BY pair_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivered pairs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (p *Postgres) Add(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO delivered_pairs (pair_key) VALUES ($1) ON CONFLICT DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("failed to insert delivered pair: %w", err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM delivered_pairs`)
	return err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
