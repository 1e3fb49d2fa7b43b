package livestream

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopline/realtime/internals/store"
)

// PostgresStreamEnder marks the durable stream record ended and drops the
// stream's ephemeral chat state.
type PostgresStreamEnder struct {
	pool  *pgxpool.Pool
	store store.Store
}

func NewPostgresStreamEnder(pool *pgxpool.Pool, s store.Store) *PostgresStreamEnder {
	return &PostgresStreamEnder{pool: pool, store: s}
}

func (e *PostgresStreamEnder) EndStream(ctx context.Context, streamID string) error {
	// Guarded update keeps the write idempotent if two processes race the
	// same expiry.
	_, err := e.pool.Exec(ctx, `
        UPDATE live_streams
        SET status = 'ended', ended_at = now()
        WHERE id = $1 AND status <> 'ended'
    `, streamID)
	if err != nil {
		return fmt.Errorf("mark stream ended: %w", err)
	}

	if err := e.store.Del(ctx, store.ChatKey(streamID)); err != nil {
		return fmt.Errorf("delete stream chat state: %w", err)
	}
	return nil
}
