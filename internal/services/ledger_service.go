package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dompet/internal/core"
	"dompet/internal/events"
	"dompet/internal/ledger"
)

// Listener is notified in-process after every successful ledger write.
type Listener func(ctx context.Context, e events.LedgerChanged)

// LedgerService records categories and transactions, then announces each
// change on the event bus and to local listeners.
type LedgerService struct {
	store     ledger.Store
	publisher events.Publisher

	mu        sync.RWMutex
	listeners []Listener
}

func NewLedgerService(store ledger.Store, publisher events.Publisher) *LedgerService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &LedgerService{store: store, publisher: publisher}
}

// Subscribe registers a listener for subsequent writes.
func (s *LedgerService) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	saved, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}

	e := events.New(events.CategoryCreated, saved.OwnerID)
	e.CategoryID = saved.ID
	s.announce(ctx, e)
	return saved, nil
}

// DeleteCategory removes a category together with its transactions.
// Each cascaded transaction is announced before the category itself.
func (s *LedgerService) DeleteCategory(ctx context.Context, owner core.OwnerScope, id int64) error {
	cat, err := s.store.GetCategory(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("load category: %w", err)
	}
	entries, err := s.store.ListEntries(ctx, ledger.Query{Owner: owner, Start: allTime[0], End: allTime[1]})
	if err != nil {
		return fmt.Errorf("list category transactions: %w", err)
	}
	if err := s.store.DeleteCategory(ctx, owner, id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete category: %w", err)
	}

	for _, entry := range entries {
		if entry.CategoryID != id {
			continue
		}
		e := events.New(events.TransactionDeleted, entry.OwnerID)
		e.TransactionID = entry.ID
		e.CategoryID = id
		e.Date = entry.Date.String()
		s.announce(ctx, e)
	}
	e := events.New(events.CategoryDeleted, cat.OwnerID)
	e.CategoryID = id
	s.announce(ctx, e)
	return nil
}

var allTime = [2]core.Date{core.NewDate(1, 1, 1), core.NewDate(9999, 12, 31)}

// CreateTransaction saves a transaction locally. Publishing the change is
// best effort: the transaction stays saved if the broker is down and the
// mirror worker reconciles it later.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		if errors.Is(err, core.ErrMissingCategory) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	e := events.New(events.TransactionCreated, saved.OwnerID)
	e.TransactionID = saved.ID
	e.CategoryID = saved.CategoryID
	e.Date = saved.Date.String()
	s.announce(ctx, e)
	return saved, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, owner core.OwnerScope, id int64) error {
	entry, err := s.store.GetEntry(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("load transaction: %w", err)
	}
	if err := s.store.DeleteTransaction(ctx, owner, id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete transaction: %w", err)
	}

	e := events.New(events.TransactionDeleted, entry.OwnerID)
	e.TransactionID = id
	e.CategoryID = entry.CategoryID
	e.Date = entry.Date.String()
	s.announce(ctx, e)
	return nil
}

func (s *LedgerService) announce(ctx context.Context, e events.LedgerChanged) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"kind", e.Kind,
			"transaction_id", e.TransactionID,
			"error", err)
	}

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, e)
	}
}

// Close closes the publisher.
func (s *LedgerService) Close() error {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
