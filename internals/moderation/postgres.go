package moderation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBanRepository provides PostgreSQL-backed persistence for bans.
type PostgresBanRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresBanRepository(pool *pgxpool.Pool) *PostgresBanRepository {
	return &PostgresBanRepository{pool: pool}
}

// Create persists a new ban record.
func (r *PostgresBanRepository) Create(ctx context.Context, record BanRecord) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO stream_bans (id, stream_id, banned_user_id, banned_by_id, reason, duration_class, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, record.ID, record.StreamID, record.BannedUserID, record.BannedByID, record.Reason, record.DurationClass, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}
