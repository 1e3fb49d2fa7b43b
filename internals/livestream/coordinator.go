package livestream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/metrics"
	"github.com/loopline/realtime/internals/store"
)

// graceMarker is the value written under grace:{streamId} while the host is
// disconnected.
const graceMarker = "waiting"

// StreamEnder is the durable collaborator that force-ends a stream: marks the
// stream record ended and deletes the stream's ephemeral chat state.
type StreamEnder interface {
	EndStream(ctx context.Context, streamID string) error
}

// Coordinator manages the window during which a disconnected live-stream host
// may reconnect before the stream is force-ended. Hosts frequently suffer
// transient drops (mobile handoff, tab reload); an immediate hard end on
// disconnect would be unacceptably brittle.
type Coordinator struct {
	store     store.Store
	publisher bus.Publisher
	ender     StreamEnder
	logger    *zap.Logger

	graceTTL time.Duration
}

func NewCoordinator(s store.Store, publisher bus.Publisher, ender StreamEnder, logger *zap.Logger, graceTTL time.Duration) *Coordinator {
	return &Coordinator{
		store:     s,
		publisher: publisher,
		ender:     ender,
		logger:    logger,
		graceTTL:  graceTTL,
	}
}

// HostLeft opens the grace window and arms the expiry check. The window key's
// own TTL is the cross-process backstop; the timer is advisory and re-checks
// the store before acting.
func (c *Coordinator) HostLeft(ctx context.Context, streamID, displayName string) error {
	if streamID == "" {
		return errors.New("livestream: missing stream id")
	}

	if err := c.store.SetEX(ctx, store.GraceKey(streamID), graceMarker, c.graceTTL); err != nil {
		return err
	}

	metrics.GraceWindowsStartedTotal.Inc()

	time.AfterFunc(c.graceTTL, func() {
		c.expiryCheck(streamID, displayName)
	})

	c.logger.Info("Grace window opened",
		zap.String("stream_id", streamID),
		zap.Duration("grace_ttl", c.graceTTL),
	)

	return nil
}

// HostRejoined closes the grace window. If the window is absent the grace
// already expired or never started; rejoining does not resurrect an ended
// stream, so this is a no-op.
func (c *Coordinator) HostRejoined(ctx context.Context, streamID string) error {
	exists, err := c.store.Exists(ctx, store.GraceKey(streamID))
	if err != nil {
		return err
	}
	if !exists {
		c.logger.Debug("Host rejoin no-op, no grace window",
			zap.String("stream_id", streamID),
		)
		return nil
	}

	if err := c.store.Del(ctx, store.GraceKey(streamID)); err != nil {
		return err
	}

	metrics.GraceWindowsRescuedTotal.Inc()

	c.logger.Info("Host rejoined within grace window",
		zap.String("stream_id", streamID),
	)

	return nil
}

// expiryCheck fires when the grace window elapses. It acts only if the window
// still exists; a rejoin in the meantime deleted the key, which suppresses
// the timer's effect.
func (c *Coordinator) expiryCheck(streamID, displayName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := c.store.Exists(ctx, store.GraceKey(streamID))
	if err != nil {
		c.logger.Error("Grace expiry check aborted",
			zap.String("stream_id", streamID),
			zap.Error(err),
		)
		return
	}
	if !exists {
		c.logger.Debug("Grace expiry no-op, host rejoined",
			zap.String("stream_id", streamID),
		)
		return
	}

	if err := c.store.Del(ctx, store.GraceKey(streamID)); err != nil {
		c.logger.Error("Failed to delete grace window",
			zap.String("stream_id", streamID),
			zap.Error(err),
		)
	}

	if err := c.ender.EndStream(ctx, streamID); err != nil {
		c.logger.Error("Failed to force-end stream",
			zap.String("stream_id", streamID),
			zap.Error(err),
		)
	}

	c.publisher.Publish(ctx, bus.StreamRoom(streamID), bus.StreamHostEnded{
		HostDisplayName: displayName,
	})

	metrics.GraceWindowsExpiredTotal.Inc()

	c.logger.Info("Stream force-ended after grace expiry",
		zap.String("stream_id", streamID),
	)
}
