package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dompet/internal/core"
	"dompet/internal/events"
	"dompet/internal/ledger"
	"dompet/internal/sheets"
)

// MirrorWorker copies recorded transactions into the spreadsheet mirror.
// Events drive it in the normal case; a periodic pass picks up anything
// whose event was lost or whose mirror write failed.
type MirrorWorker struct {
	store     ledger.Store
	mirror    sheets.TransactionMirror
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorWorker(store ledger.Store, mirror sheets.TransactionMirror, batchSize int, interval time.Duration) *MirrorWorker {
	if batchSize < 1 {
		batchSize = 20
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MirrorWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
		interval:  interval,
	}
}

// HandleEvent is the events.Handler for the mirror.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e events.LedgerChanged) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"kind", e.Kind,
		"transaction_id", e.TransactionID,
		"owner_id", e.OwnerID)

	switch e.Kind {
	case events.TransactionCreated:
		return w.mirrorTransaction(ctx, e.TransactionID)
	case events.TransactionDeleted:
		if err := w.mirror.Remove(ctx, e.TransactionID); err != nil {
			return fmt.Errorf("remove mirrored row: %w", err)
		}
		slog.InfoContext(ctx, "Removed mirrored transaction", "transaction_id", e.TransactionID)
		return nil
	default:
		// Category changes reach the sheet through their transactions.
		return nil
	}
}

// ProcessPending mirrors one batch of transactions that have not reached
// the sheet yet and returns how many were mirrored.
func (w *MirrorWorker) ProcessPending(ctx context.Context) (int, error) {
	ids, err := w.store.PendingMirror(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(ids))
	synced := 0
	for _, id := range ids {
		if err := w.mirrorTransaction(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction", "transaction_id", id, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// PruneRemoved clears sheet rows whose transaction no longer exists in the
// ledger. It covers delete events that were never delivered.
func (w *MirrorWorker) PruneRemoved(ctx context.Context) (int, error) {
	ids, err := w.mirror.MirroredIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirrored rows: %w", err)
	}
	removed := 0
	for _, id := range ids {
		_, err := w.store.GetEntry(ctx, core.OwnerScope{}, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return removed, fmt.Errorf("get transaction: %w", err)
		}
		if err := w.mirror.Remove(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to clear orphaned row", "transaction_id", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, id int64) error {
	entry, err := w.store.GetEntry(ctx, core.OwnerScope{}, id)
	if errors.Is(err, ledger.ErrNotFound) {
		// Deleted before the worker got to it; its delete event clears the row.
		slog.DebugContext(ctx, "Transaction no longer exists", "transaction_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	if err := w.mirror.Upsert(ctx, sheets.RowFromEntry(entry)); err != nil {
		if markErr := w.store.MarkMirrorFailed(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark mirror error", "transaction_id", id, "error", markErr)
		}
		return fmt.Errorf("upsert mirrored row: %w", err)
	}

	if err := w.store.MarkMirrored(ctx, id); err != nil {
		// The row is in the sheet; a later pass rewrites the same row.
		slog.ErrorContext(ctx, "Failed to mark as mirrored", "transaction_id", id, "error", err)
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"transaction_id", id,
		"date", entry.Date.String(),
		"amount", entry.Amount.StringFixed(2))
	return nil
}

// Start runs the reconciliation loop in the background. Returns an error if
// already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("mirror worker is already running")
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Mirror reconciliation started",
		"interval", w.interval,
		"batch_size", w.batchSize)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror reconciliation stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror reconciliation stop timed out")
		return ctx.Err()
	}
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Catch up on anything missed while the worker was down.
	w.reconcile(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *MirrorWorker) reconcile(ctx context.Context) {
	n, err := w.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Mirror reconciliation failed", "error", err)
		return
	}
	pruned, err := w.PruneRemoved(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Mirror pruning failed", "error", err)
	}
	if n > 0 || pruned > 0 {
		slog.InfoContext(ctx, "Mirror reconciliation pass completed", "mirrored", n, "pruned", pruned)
	}
}
