package pubsub

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/olegabu/go-utxo-ledger/retry"
)

// KafkaBus is a Bus over a Kafka cluster: a sync producer with full acks
// on the publish side, a consumer group on the consume side.
type KafkaBus struct {
	brokers  []string
	producer sarama.SyncProducer
	logger   zerolog.Logger
}

func NewKafkaBus(brokers []string, logger zerolog.Logger) (*KafkaBus, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := retry.Do(retry.Policy{Retries: 3, Delay: 100 * time.Millisecond}, func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, config)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect producer to kafka at %v", brokers)
	}

	logger.Info().Strs("brokers", brokers).Msg("connected to kafka")

	return &KafkaBus{
		brokers:  brokers,
		producer: producer,
		logger:   logger,
	}, nil
}

func (t *KafkaBus) SendMessage(topic string, messages []KeyedMessage) error {
	for _, message := range messages {
		partition, offset, err := t.producer.SendMessage(&sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.ByteEncoder(message.Key),
			Value: sarama.ByteEncoder(message.Value),
		})
		if err != nil {
			return errors.Wrapf(err, "cannot send message to topic %v", topic)
		}
		t.logger.Debug().
			Str("topic", topic).
			Int32("partition", partition).
			Int64("offset", offset).
			Msg("message sent")
	}

	return nil
}

// Listen consumes the topic as part of group, delivering every message
// value to handler. Offsets are marked after the handler returns, so a
// crash mid-handling redelivers the message: at-least-once.
func (t *KafkaBus) Listen(ctx context.Context, topic string, group string, handler func(value []byte)) error {
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(t.brokers, group, config)
	if err != nil {
		return errors.Wrapf(err, "cannot create consumer group %v", group)
	}
	defer consumerGroup.Close()

	consumer := &groupConsumer{handler: handler, logger: t.logger}

	for {
		// Consume returns on every rebalance; loop to rejoin the group.
		err = consumerGroup.Consume(ctx, []string{topic}, consumer)
		if err != nil {
			return errors.Wrapf(err, "cannot consume topic %v", topic)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (t *KafkaBus) Close() error {
	err := t.producer.Close()
	if err != nil {
		return errors.Wrap(err, "cannot close kafka producer")
	}
	return nil
}

// groupConsumer implements sarama.ConsumerGroupHandler delivering claimed
// messages to the bus handler.
type groupConsumer struct {
	handler func(value []byte)
	logger  zerolog.Logger
}

func (t *groupConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (t *groupConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (t *groupConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			t.handler(message.Value)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
