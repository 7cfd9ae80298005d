package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const recentEventWindow = 1024

// Bridge relays events published by other API nodes into the local hub.
// Every node publishes each event to all configured buses, so the bridge
// consumes exactly one of them: NATS when connected, Redis otherwise.
type Bridge struct {
	hub          *Hub
	nodeID       string
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	recent []string
}

// NewBridge builds a bridge; nil clients are skipped.
func NewBridge(hub *Hub, nodeID string, redisClient *redis.Client, redisChannel string, natsConn *nats.Conn, natsSubject string, logger zerolog.Logger) *Bridge {
	return &Bridge{
		hub:          hub,
		nodeID:       nodeID,
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		logger:       logger.With().Str("component", "event_bridge").Logger(),
		seen:         make(map[string]struct{}, recentEventWindow),
	}
}

// Start launches the consumer; it stops when ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	switch {
	case b.nats != nil && b.natsSubject != "":
		go b.consumeNATS(ctx)
	case b.redis != nil && b.redisChannel != "":
		go b.consumeRedis(ctx)
	}
}

func (b *Bridge) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		b.handle(ctx, []byte(msg.Payload))
	}
}

func (b *Bridge) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handle(ctx, msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain event nats subscription")
		}
	}()
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}
	if msg.Source == b.nodeID || !b.firstDelivery(msg.EventID) {
		return
	}
	_ = b.hub.Publish(ctx, msg)
}

// firstDelivery reports whether eventID is new within the recent window. The
// outbox relay may publish an event again after a partial bus failure.
func (b *Bridge) firstDelivery(eventID string) bool {
	if eventID == "" {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[eventID]; ok {
		return false
	}
	if len(b.recent) == recentEventWindow {
		delete(b.seen, b.recent[0])
		b.recent = b.recent[1:]
	}
	b.seen[eventID] = struct{}{}
	b.recent = append(b.recent, eventID)
	return true
}
