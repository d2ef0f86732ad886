// Package bus provides named-channel, poll-based pub/sub used to notify
// external collaborators of panel selections, escalations and decisions.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/conclave/internal/domain"
)

// Filter narrows a poll. Zero values match everything.
type Filter struct {
	Type   domain.MessageType
	Source string
}

// Transport is the backing store for bus channels. Message loss beyond
// process lifetime is acceptable unless the transport is durable.
type Transport interface {
	Publish(ctx context.Context, channel string, msg domain.Message) error
	Poll(ctx context.Context, channel string, since time.Time, limit int, filter Filter) ([]domain.Message, error)
}

// Bus stamps the uniform envelope onto payloads and hands them to the
// transport. Delivery is poll-based; nothing here calls back into the
// publisher.
type Bus struct {
	transport Transport
	source    string
}

// New creates a bus publishing under the given source identity.
func New(transport Transport, source string) *Bus {
	return &Bus{transport: transport, source: source}
}

// Publish wraps the payload in an envelope and writes it to the channel.
func (b *Bus) Publish(ctx context.Context, channel string, msgType domain.MessageType, payload interface{}) (*domain.Message, error) {
	return b.PublishTo(ctx, channel, msgType, "", "", payload)
}

// PublishTo publishes with an explicit target and correlation id.
func (b *Bus) PublishTo(ctx context.Context, channel string, msgType domain.MessageType, target, correlationID string, payload interface{}) (*domain.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", channel, err)
	}
	msg := domain.Message{
		MessageID:     "msg_" + uuid.New().String()[:8],
		Timestamp:     time.Now(),
		Type:          msgType,
		Source:        b.source,
		Target:        target,
		CorrelationID: correlationID,
		Payload:       data,
	}
	if err := b.transport.Publish(ctx, channel, msg); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", channel, err)
	}
	return &msg, nil
}

// Poll returns up to limit messages on the channel newer than since,
// oldest first.
func (b *Bus) Poll(ctx context.Context, channel string, since time.Time, limit int, filter Filter) ([]domain.Message, error) {
	return b.transport.Poll(ctx, channel, since, limit, filter)
}

func (f Filter) matches(msg domain.Message) bool {
	if f.Type != "" && msg.Type != f.Type {
		return false
	}
	if f.Source != "" && msg.Source != f.Source {
		return false
	}
	return true
}
