package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ledger/internal/events"
)

const DefaultTopic = "ledger.transactions"

// Publisher writes change messages to a Kafka topic, keyed by transaction
// id so all changes of one record land on the same partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		topic: topic,
	}
}

func (p *Publisher) Publish(ctx context.Context, msg events.Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.TransactionID),
		Value: data,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(msg.Op)},
		},
	})
	if err != nil {
		return fmt.Errorf("write to topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ events.Publisher = (*Publisher)(nil)
