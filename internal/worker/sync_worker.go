// Package worker copies ledger records from SQLite to Google Sheets.
//
// Events from the broker trigger an export of the record they name. A
// periodic pass exports anything whose event was lost, so every recorded
// transaction and every delivered order eventually lands on the sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"warung/internal/amqp"
	"warung/internal/core"
	"warung/internal/ledger"
	applog "warung/internal/log"
)

// Source is what the worker reads from and marks progress in.
type Source interface {
	ledger.TransactionReader
	ledger.OrderReader
	ledger.SyncTracker
}

type SyncWorker struct {
	source    Source
	exporter  ledger.TransactionExporter
	batchSize int
	now       func() time.Time

	// mu keeps an event and the pending pass from exporting the same record twice.
	mu sync.Mutex
}

func NewSyncWorker(source Source, exporter ledger.TransactionExporter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		source:    source,
		exporter:  exporter,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleMessage processes a single ledger event from AMQP. A returned error
// requeues the message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event", "type", msg.Type, "id", msg.ID, "status", msg.Status)

	var err error
	switch msg.Type {
	case amqp.EventTransactionRecorded:
		err = w.syncTransactionByID(ctx, msg.ID)
	case amqp.EventOrderStatusChanged:
		if msg.Status != core.StatusDelivered.String() {
			return nil
		}
		err = w.syncSaleByID(ctx, msg.ID)
	case amqp.EventOrderPlaced:
		// Orders become sales on delivery.
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring unknown event", "type", msg.Type, "id", msg.ID)
		return nil
	}

	if errors.Is(err, ledger.ErrNotFound) {
		// The record is not in this database; retrying cannot help.
		slog.WarnContext(ctx, "Event names an unknown record, dropping", "type", msg.Type, "id", msg.ID)
		return nil
	}
	return err
}

func (w *SyncWorker) syncTransactionByID(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	done, err := w.source.TransactionSynced(ctx, id)
	if err != nil {
		return err
	}
	if done {
		slog.DebugContext(ctx, "Transaction already synced", "id", id)
		return nil
	}
	t, err := w.source.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	return w.exportTransaction(ctx, t)
}

func (w *SyncWorker) syncSaleByID(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	done, err := w.source.SaleSynced(ctx, id)
	if err != nil {
		return err
	}
	if done {
		slog.DebugContext(ctx, "Sale already synced", "id", id)
		return nil
	}
	o, err := w.source.GetOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("get order from storage: %w", err)
	}
	if o.Status != core.StatusDelivered {
		slog.WarnContext(ctx, "Order is not delivered, skipping sale export", "id", id, "status", o.Status.String())
		return nil
	}
	return w.exportSale(ctx, o)
}

func (w *SyncWorker) exportTransaction(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.ExportTransaction(ctx, t)
	if err != nil {
		return fmt.Errorf("export transaction %s: %w", t.ID, err)
	}
	if err := w.source.MarkTransactionSynced(ctx, t.ID, w.now()); err != nil {
		// The row is on the sheet; a retry would duplicate it.
		slog.ErrorContext(ctx, "Failed to mark transaction as synced", "id", t.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		applog.NewFields().
			WithComponent(applog.ComponentWorker).
			WithOperation(applog.OpSync).
			WithTransaction(t.ID, t.Kind.String(), int64(t.Amount), t.Category).
			ToSlice()...,
	)
	slog.DebugContext(ctx, "Sheets row appended", applog.FieldSheetsRef, ref)
	return nil
}

func (w *SyncWorker) exportSale(ctx context.Context, o core.Order) error {
	ref, err := w.exporter.ExportSale(ctx, o)
	if err != nil {
		return fmt.Errorf("export sale %s: %w", o.ID, err)
	}
	if err := w.source.MarkSaleSynced(ctx, o.ID, w.now()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sale as synced", "id", o.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced sale",
		applog.NewFields().
			WithComponent(applog.ComponentWorker).
			WithOperation(applog.OpSync).
			WithOrder(o.ID, o.Status.String(), int64(o.Total)).
			ToSlice()...,
	)
	slog.DebugContext(ctx, "Sheets row appended", applog.FieldSheetsRef, ref)
	return nil
}

// ProcessPending exports up to limit unsynced transactions and sales. It is
// the backup for lost events and returns how many records were exported.
func (w *SyncWorker) ProcessPending(ctx context.Context, limit int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	txs, err := w.source.PendingSyncTransactions(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	sales, err := w.source.PendingSales(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending sales: %w", err)
	}
	if len(txs) == 0 && len(sales) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending records", "transactions", len(txs), "sales", len(sales))

	synced := 0
	var errs []error
	for _, t := range txs {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.exportTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", t.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		synced++
	}
	for _, o := range sales {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.exportSale(ctx, o); err != nil {
			slog.ErrorContext(ctx, "Failed to sync sale", "id", o.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		synced++
	}
	return synced, errors.Join(errs...)
}

// StartupSyncCheck exports what accumulated while the worker was down,
// using a larger batch than the periodic pass.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.ProcessPending(ctx, w.batchSize*5)
	slog.InfoContext(ctx, "Startup sync completed", "synced", n, "error", err)
	return err
}

// Run repeats the pending pass every interval until ctx is done. Export
// failures are logged and retried on the next tick.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx, w.batchSize); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "Periodic sync incomplete", "error", err)
			}
		}
	}
}
