// Package dedup is an optional best-effort guard against duplicate webhook
// deliveries. The bridge stays correct without it (invite links are
// single-use); with a database configured it suppresses repeat actions for
// event ids it has already recorded.
package dedup

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MarkProcessed records the event id and reports whether it had been seen
// before. The insert and the check are one statement, so concurrent
// deliveries of the same event race safely.
func (r *Repository) MarkProcessed(ctx context.Context, eventID, kind string) (bool, error) {
	query := `INSERT INTO processed_event (id, kind, processed_at)
	          VALUES ($1, $2, now()) ON CONFLICT (id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, eventID, kind)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}
