// Package events defines the ledger change notification shared by the API,
// the message brokers and the mirror worker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	CategoryCreated    Kind = "category_created"
	CategoryDeleted    Kind = "category_deleted"
	TransactionCreated Kind = "transaction_created"
	TransactionDeleted Kind = "transaction_deleted"
)

// LedgerChanged is a lightweight message: it carries identifiers only and
// consumers read the current state from the ledger.
type LedgerChanged struct {
	Kind          Kind      `json:"kind"`
	OwnerID       string    `json:"owner_id"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	CategoryID    int64     `json:"category_id,omitempty"`
	Date          string    `json:"date,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func New(kind Kind, ownerID string) LedgerChanged {
	return LedgerChanged{Kind: kind, OwnerID: ownerID, Timestamp: time.Now().UTC()}
}

// AffectsTransactions reports whether the change can alter report figures
// or mirrored rows.
func (e LedgerChanged) AffectsTransactions() bool {
	return e.Kind != CategoryCreated
}

func (e LedgerChanged) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (LedgerChanged, error) {
	var e LedgerChanged
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerChanged{}, err
	}
	return e, nil
}

// Handler processes one event. A returned error asks the broker to redeliver.
type Handler func(ctx context.Context, e LedgerChanged) error

type (
	Publisher interface {
		Publish(ctx context.Context, e LedgerChanged) error
		Close() error
	}

	// Subscriber blocks in Consume until ctx is done or the source fails.
	Subscriber interface {
		Consume(ctx context.Context, h Handler) error
		Close() error
	}
)

// Nop discards published events and never delivers any.
type Nop struct{}

func (Nop) Publish(context.Context, LedgerChanged) error { return nil }

func (Nop) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Nop) Close() error { return nil }
