package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLastSeen persists last-seen timestamps in PostgreSQL.
type PostgresLastSeen struct {
	pool *pgxpool.Pool
}

func NewPostgresLastSeen(pool *pgxpool.Pool) *PostgresLastSeen {
	return &PostgresLastSeen{pool: pool}
}

// SetLastSeen upserts the user's last-seen timestamp.
func (r *PostgresLastSeen) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO user_last_seen (user_id, last_seen_at)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
    `, userID, at)
	if err != nil {
		return fmt.Errorf("upsert last seen: %w", err)
	}
	return nil
}

// PostgresPeerSource derives a user's presence peers from their active
// conversations.
type PostgresPeerSource struct {
	pool *pgxpool.Pool
}

func NewPostgresPeerSource(pool *pgxpool.Pool) *PostgresPeerSource {
	return &PostgresPeerSource{pool: pool}
}

// Peers returns the other participants of every conversation the user is in.
func (r *PostgresPeerSource) Peers(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT DISTINCT cp.user_id
        FROM conversation_participants cp
        JOIN conversation_participants own
          ON own.conversation_id = cp.conversation_id
        WHERE own.user_id = $1
          AND cp.user_id <> $1
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("select conversation peers: %w", err)
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, peer)
	}
	return peers, rows.Err()
}
