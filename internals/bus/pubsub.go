package bus

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/metrics"
)

// Channel prefix for Redis pub/sub room multicast.
const (
	RoomChannelPrefix = "rt:room:"
)

// envelope wraps a room event with origin info so an instance can skip
// messages it already delivered locally.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Room       string          `json:"room"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PubSub implements Publisher over Redis pub/sub, fanning events out to local
// hub clients and to every other server instance sharing the Redis.
type PubSub struct {
	redis      *redis.Client
	hub        *Hub
	instanceID string
	logger     *zap.Logger

	sub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPubSub creates the cross-instance multicast bridge. Room channels are
// dynamic, so a single pattern subscription covers all of them.
func NewPubSub(redisClient *redis.Client, hub *Hub, logger *zap.Logger) *PubSub {
	ctx, cancel := context.WithCancel(context.Background())

	// Generate instance ID from hostname or env
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceID = "unknown"
		} else {
			instanceID = hostname
		}
	}

	p := &PubSub{
		redis:      redisClient,
		hub:        hub,
		instanceID: instanceID,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	p.sub = redisClient.PSubscribe(ctx, RoomChannelPrefix+"*")
	go p.listen()

	logger.Info("PubSub bridge initialized",
		zap.String("instance_id", instanceID),
	)

	return p
}

// RoomChannel returns the Redis channel name for a room.
func RoomChannel(room string) string {
	return RoomChannelPrefix + room
}

// Publish delivers the event to local clients in the room and broadcasts it
// to other instances. A publish failure is logged and abandoned; the state
// behind the event is advisory and the store remains authoritative.
func (p *PubSub) Publish(ctx context.Context, room string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("room", room),
			zap.String("event", event.EventName()),
			zap.Error(err),
		)
		return err
	}

	now := time.Now()
	p.hub.Deliver(OutboundMessage{
		Event:     event.EventName(),
		Room:      room,
		Data:      data,
		Timestamp: now,
	})

	env := envelope{
		InstanceID: p.instanceID,
		Room:       room,
		Event:      event.EventName(),
		Data:       data,
		Timestamp:  now,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := p.redis.Publish(ctx, RoomChannel(room), payload).Err(); err != nil {
		metrics.BusErrorsTotal.Inc()
		p.logger.Error("Failed to publish to Redis",
			zap.String("room", room),
			zap.String("event", event.EventName()),
			zap.Error(err),
		)
		return err
	}

	metrics.RecordPublish(event.EventName())
	return nil
}

// listen processes messages from other instances.
func (p *PubSub) listen() {
	ch := p.sub.Channel()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *PubSub) handleMessage(redisMsg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(redisMsg.Payload), &env); err != nil {
		p.logger.Warn("Failed to unmarshal pub/sub message",
			zap.String("channel", redisMsg.Channel),
			zap.Error(err),
		)
		return
	}

	// Ignore messages from this instance (already delivered locally)
	if env.InstanceID == p.instanceID {
		return
	}

	p.logger.Debug("Received cross-instance event",
		zap.String("room", env.Room),
		zap.String("event", env.Event),
		zap.String("from_instance", env.InstanceID),
	)

	p.hub.Deliver(OutboundMessage{
		Event:     env.Event,
		Room:      env.Room,
		Data:      env.Data,
		Timestamp: env.Timestamp,
	})
}

// InstanceID returns this instance's unique identifier.
func (p *PubSub) InstanceID() string {
	return p.instanceID
}

// Close shuts down the pattern subscription.
func (p *PubSub) Close() error {
	p.cancel()

	if err := p.sub.Close(); err != nil {
		p.logger.Warn("Error closing pub/sub subscription", zap.Error(err))
		return err
	}

	p.logger.Info("PubSub bridge closed")
	return nil
}
