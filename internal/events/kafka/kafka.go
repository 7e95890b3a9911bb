// Package kafka carries ledger change events over a Kafka topic. Messages are
// keyed by owner so one owner's changes stay ordered within a partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dompet/internal/events"

	"github.com/segmentio/kafka-go"
)

// handlerAttempts bounds redelivery of one message before it is skipped.
// Skipped transactions are picked up by the worker's reconciliation pass.
const handlerAttempts = 3

type Publisher struct {
	writer *kafka.Writer
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, e events.LedgerChanged) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OwnerID),
		Value: data,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the subscriber needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Subscriber struct {
	reader  messageReader
	backoff time.Duration
}

var _ events.Subscriber = (*Subscriber)(nil)

func NewSubscriber(brokers []string, topic, groupID string) *Subscriber {
	return &Subscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  time.Second,
		}),
		backoff: time.Second,
	}
}

// Consume commits each message after h succeeds. Undecodable messages are
// committed and dropped.
func (s *Subscriber) Consume(ctx context.Context, h events.Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		e, err := events.FromJSON(msg.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err, "offset", msg.Offset)
		} else if err := s.handle(ctx, h, e); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "Giving up on ledger change",
				"error", err,
				"kind", e.Kind,
				"transaction_id", e.TransactionID,
				"offset", msg.Offset)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit kafka message: %w", err)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, h events.Handler, e events.LedgerChanged) error {
	var err error
	for attempt := 0; attempt < handlerAttempts; attempt++ {
		if err = h(ctx, e); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "Failed to handle message", "error", err, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff << attempt):
		}
	}
	return err
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}
