// Package pubsub decouples accepting a ledger request from executing it:
// producers publish keyed messages to a topic, consumers receive them with
// at-least-once delivery and must be idempotent.
package pubsub

import (
	"context"
)

type KeyedMessage struct {
	Key   []byte
	Value []byte
}

// Bus is the async transport collaborator. SendMessage publishes a batch
// to a topic. Listen blocks delivering every message value on the topic to
// handler until ctx is cancelled; delivery is at-least-once, so the
// handler must tolerate duplicates.
type Bus interface {
	SendMessage(topic string, messages []KeyedMessage) error
	Listen(ctx context.Context, topic string, group string, handler func(value []byte)) error
	Close() error
}
