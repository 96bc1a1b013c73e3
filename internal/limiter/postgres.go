package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by all instances.
type PG struct {
	pool  pgxQuerier
	size  time.Duration
	limit int
	now   func() time.Time
}

var (
	_ Limiter = (*PG)(nil)
	_ Pruner  = (*PG)(nil)
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, size time.Duration, limit int) *PG {
	return NewPGWithQuerier(pool, size, limit)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter.
func NewPGWithQuerier(q pgxQuerier, size time.Duration, limit int) *PG {
	if size <= 0 {
		size = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &PG{pool: q, size: size, limit: limit, now: time.Now}
}

// Allow increments the counter for key in a single statement; a window older
// than the configured size is restarted in the same statement.
func (l *PG) Allow(ctx context.Context, key []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO rate_limits (key_hash, window_start, hits)
VALUES ($1, $2, 1)
ON CONFLICT (key_hash) DO UPDATE
SET
  hits = CASE WHEN rate_limits.window_start <= $2 - $3::interval THEN 1 ELSE rate_limits.hits + 1 END,
  window_start = CASE WHEN rate_limits.window_start <= $2 - $3::interval THEN $2 ELSE rate_limits.window_start END
RETURNING hits, window_start`
	now := l.now()
	var (
		hits  int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, now, l.size).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits > l.limit {
		return false, start.Add(l.size).Sub(now), nil
	}
	return true, 0, nil
}

// Prune deletes counters whose window has elapsed.
func (l *PG) Prune(ctx context.Context) (int64, error) {
	const q = `DELETE FROM rate_limits WHERE window_start <= $1`
	tag, err := l.pool.Exec(ctx, q, l.now().Add(-l.size))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
