package bus

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

// channelCap bounds per-channel retention on the memory transport; the
// oldest messages are dropped first.
const channelCap = 1024

// MemoryTransport keeps channels in process memory. Suited to tests and
// single-process deployments where loss on restart is acceptable.
type MemoryTransport struct {
	mu       sync.RWMutex
	channels map[string][]domain.Message
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{channels: make(map[string][]domain.Message)}
}

// Publish appends the message to the channel.
func (t *MemoryTransport) Publish(ctx context.Context, channel string, msg domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := append(t.channels[channel], msg)
	if len(msgs) > channelCap {
		msgs = msgs[len(msgs)-channelCap:]
	}
	t.channels[channel] = msgs
	return nil
}

// Poll returns messages strictly newer than since, oldest first.
func (t *MemoryTransport) Poll(ctx context.Context, channel string, since time.Time, limit int, filter Filter) ([]domain.Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.Message
	for _, msg := range t.channels[channel] {
		if !msg.Timestamp.After(since) {
			continue
		}
		if !filter.matches(msg) {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
