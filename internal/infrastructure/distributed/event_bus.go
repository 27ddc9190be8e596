package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

const eventChannel = "ponslink:events"

// wireEvent is the cross-instance form of a session event. The error is
// flattened to a string; consumers only display it.
type wireEvent struct {
	Kind       domain.EventKind `json:"kind"`
	InstanceID string           `json:"instance_id"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	PeerID     domain.PeerID    `json:"peer_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// EventBus mirrors session events onto a Redis channel so other instances
// and operator tooling can observe every node's shares. It implements
// ports.EventPublisher.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// PublishEvent implements ports.EventPublisher.
func (b *EventBus) PublishEvent(ctx context.Context, event domain.SessionEvent) error {
	ev := wireEvent{
		Kind:       event.Kind,
		InstanceID: b.instanceID,
		SessionID:  event.SessionID,
		PeerID:     event.PeerID,
		Timestamp:  event.Timestamp,
	}
	if event.Err != nil {
		ev.Error = event.Err.Error()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("published event",
		"kind", ev.Kind,
		"session_id", ev.SessionID,
		"peer_id", ev.PeerID,
	)
	return nil
}

// Subscribe delivers events published by other instances until the context
// ends. Events originating from this instance are skipped.
func (b *EventBus) Subscribe(ctx context.Context, handler func(kind domain.EventKind, sessionID domain.SessionID, peerID domain.PeerID)) error {
	pubsub := b.client.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warnw("malformed event on bus", "error", err)
				continue
			}
			if ev.InstanceID == b.instanceID {
				continue
			}
			handler(ev.Kind, ev.SessionID, ev.PeerID)
		}
	}
}
