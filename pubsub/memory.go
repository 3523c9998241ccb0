package pubsub

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBus is a channel backed Bus for tests and single process
// deployments. Messages published to a topic are delivered to whichever
// listeners consume that topic's channel.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]chan KeyedMessage
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]chan KeyedMessage)}
}

func (t *MemoryBus) topic(name string) chan KeyedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.topics[name]
	if !ok {
		ch = make(chan KeyedMessage, 1024)
		t.topics[name] = ch
	}
	return ch
}

func (t *MemoryBus) SendMessage(topic string, messages []KeyedMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.New("bus is closed")
	}

	ch := t.topic(topic)
	for _, message := range messages {
		ch <- message
	}
	return nil
}

// Listen consumes the topic until ctx is cancelled. The group argument is
// accepted for interface parity; every listener competes for messages the
// way consumers in one group do.
func (t *MemoryBus) Listen(ctx context.Context, topic string, group string, handler func(value []byte)) error {
	ch := t.topic(topic)

	for {
		select {
		case message, ok := <-ch:
			if !ok {
				return nil
			}
			handler(message.Value)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *MemoryBus) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, ch := range t.topics {
		close(ch)
	}
	return nil
}
