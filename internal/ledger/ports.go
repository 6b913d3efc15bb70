package ledger

import (
	"context"
	"errors"
	"time"

	"warung/internal/core"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record changed underneath an update.
	ErrConflict = errors.New("conflict")
)

// OrderMutation computes the replacement of an order from its current value.
type OrderMutation func(current core.Order) (core.Order, error)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, t core.Transaction) error
	}

	TransactionReader interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// ListTransactions returns transactions that occurred at or after
		// since, most recent first.
		ListTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error)
	}

	OrderWriter interface {
		SaveOrder(ctx context.Context, o core.Order) error
		// UpdateOrder runs mutate on the stored order and stores its result.
		// Updates to the same order are serialized.
		UpdateOrder(ctx context.Context, id string, mutate OrderMutation) (core.Order, error)
	}

	OrderReader interface {
		GetOrder(ctx context.Context, id string) (core.Order, error)
		// ListOrders returns orders placed at or after since, newest first.
		// A limit of zero or less returns all of them.
		ListOrders(ctx context.Context, since time.Time, limit int) ([]core.Order, error)
	}

	ProductCatalog interface {
		AddProduct(ctx context.Context, p core.Product) error
		ListProducts(ctx context.Context) ([]core.Product, error)
	}

	TaxonomyReader interface {
		Categories(ctx context.Context, kind core.Kind) ([]string, error)
	}

	// Store is everything a backend offers the application layer.
	Store interface {
		TransactionWriter
		TransactionReader
		OrderWriter
		OrderReader
		ProductCatalog
		TaxonomyReader
	}

	// TransactionExporter copies ledger rows to an external spreadsheet.
	TransactionExporter interface {
		ExportTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
		ExportSale(ctx context.Context, o core.Order) (rowRef string, err error)
	}

	// SyncTracker remembers which transactions and sales reached the
	// exporter.
	SyncTracker interface {
		PendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
		MarkTransactionSynced(ctx context.Context, id string, at time.Time) error
		TransactionSynced(ctx context.Context, id string) (bool, error)
		// PendingSales returns delivered orders not yet exported, oldest first.
		PendingSales(ctx context.Context, limit int) ([]core.Order, error)
		MarkSaleSynced(ctx context.Context, id string, at time.Time) error
		SaleSynced(ctx context.Context, id string) (bool, error)
	}
)
