package kafka

import (
	"context"
	"errors"
	"testing"

	"dompet/internal/events"

	"github.com/segmentio/kafka-go"
)

var errDrained = errors.New("no more messages")

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		if ctx.Err() != nil {
			return kafka.Message{}, ctx.Err()
		}
		return kafka.Message{}, errDrained
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func message(t *testing.T, offset int64, e events.LedgerChanged) kafka.Message {
	t.Helper()
	b, err := e.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Offset: offset, Value: b}
}

func TestSubscriberConsume(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, 1, events.New(events.TransactionCreated, "alice")),
		{Offset: 2, Value: []byte("not json")},
		message(t, 3, events.New(events.TransactionDeleted, "bob")),
	}}
	sub := &Subscriber{reader: reader}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []events.Kind
	err := sub.Consume(ctx, func(_ context.Context, e events.LedgerChanged) error {
		seen = append(seen, e.Kind)
		if len(seen) == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Consume() error = %v, want context.Canceled", err)
	}
	if len(seen) != 2 || seen[1] != events.TransactionDeleted {
		t.Fatalf("handled = %v", seen)
	}
	if len(reader.committed) != 3 {
		t.Fatalf("committed offsets = %v", reader.committed)
	}
}

func TestSubscriberRetriesThenSkips(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, 7, events.New(events.TransactionCreated, "alice")),
	}}
	sub := &Subscriber{reader: reader}

	calls := 0
	err := sub.Consume(context.Background(), func(context.Context, events.LedgerChanged) error {
		calls++
		return errors.New("sheet unavailable")
	})
	if !errors.Is(err, errDrained) {
		t.Fatalf("Consume() error = %v", err)
	}
	if calls != handlerAttempts {
		t.Fatalf("handler called %d times, want %d", calls, handlerAttempts)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Fatalf("failed message should still be committed, got %v", reader.committed)
	}
}

func TestSubscriberClose(t *testing.T) {
	reader := &fakeReader{}
	if err := (&Subscriber{reader: reader}).Close(); err != nil || !reader.closed {
		t.Fatalf("Close() err=%v closed=%v", err, reader.closed)
	}
}
