package presence

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/metrics"
	"github.com/loopline/realtime/internals/store"
)

// PeerSource resolves the set of users who should see a user's presence,
// derived from their active conversations. Computed once per connection.
type PeerSource interface {
	Peers(ctx context.Context, userID string) ([]string, error)
}

// LastSeenStore persists the durable last-seen timestamp written on clean
// disconnect.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Tracker maintains per-user online state. Presence is optimistic: absence of
// the online key means "assume offline", not "confirmed offline", and a
// process crash without clean disconnect simply leaves a record that expires
// on its own.
type Tracker struct {
	store     store.Store
	publisher bus.Publisher
	peers     PeerSource
	lastSeen  LastSeenStore
	logger    *zap.Logger

	presenceTTL time.Duration
}

func NewTracker(s store.Store, publisher bus.Publisher, peers PeerSource, lastSeen LastSeenStore, logger *zap.Logger, presenceTTL time.Duration) *Tracker {
	return &Tracker{
		store:       s,
		publisher:   publisher,
		peers:       peers,
		lastSeen:    lastSeen,
		logger:      logger,
		presenceTTL: presenceTTL,
	}
}

// Connected registers the user as online and runs the two-way presence
// exchange: each peer learns this user is online, and this user learns which
// peers are already online. The exchange is necessary because presence is
// room-scoped push, not a queryable broadcast list. Returns the peer set so
// the caller can reuse it on disconnect.
func (t *Tracker) Connected(ctx context.Context, userID string) ([]string, error) {
	peers, err := t.peers.Peers(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := t.store.SetEX(ctx, store.OnlineKey(userID), now, t.presenceTTL); err != nil {
		return nil, err
	}

	metrics.PresenceConnectsTotal.Inc()

	for _, peer := range peers {
		t.publisher.Publish(ctx, bus.PersonalRoom(peer), bus.PresenceOnline{UserID: userID})

		online, err := t.store.Exists(ctx, store.OnlineKey(peer))
		if err != nil {
			// Losing one presence hint is preferable to failing the connect.
			t.logger.Warn("Peer presence check failed",
				zap.String("user_id", userID),
				zap.String("peer_id", peer),
				zap.Error(err),
			)
			continue
		}
		if online {
			t.publisher.Publish(ctx, bus.PersonalRoom(userID), bus.PresenceOnline{UserID: peer})
		}
	}

	t.logger.Info("User online",
		zap.String("user_id", userID),
		zap.Int("peer_count", len(peers)),
	)

	return peers, nil
}

// Heartbeat refreshes the online record's TTL.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	return t.store.SetEX(ctx, store.OnlineKey(userID), now, t.presenceTTL)
}

// Disconnected removes the online record, persists the durable last-seen
// timestamp, and tells every peer the user went offline.
func (t *Tracker) Disconnected(ctx context.Context, userID string, peers []string) error {
	lastSeen := time.Now()

	if err := t.store.Del(ctx, store.OnlineKey(userID)); err != nil {
		t.logger.Error("Failed to delete online record",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if err := t.lastSeen.SetLastSeen(ctx, userID, lastSeen); err != nil {
		t.logger.Error("Failed to persist last-seen",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	offline := bus.PresenceOffline{UserID: userID, LastSeen: lastSeen.Unix()}
	for _, peer := range peers {
		t.publisher.Publish(ctx, bus.PersonalRoom(peer), offline)
	}

	metrics.PresenceDisconnectsTotal.Inc()

	t.logger.Info("User offline",
		zap.String("user_id", userID),
		zap.Int("peer_count", len(peers)),
	)

	return nil
}
