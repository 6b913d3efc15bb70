package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warung/internal/cache"
	"warung/internal/core"
	"warung/internal/ledger"
	applog "warung/internal/log"
)

// EventPublisher announces ledger changes to the sync worker.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, id string) error
	PublishOrderPlaced(ctx context.Context, id string) error
	PublishOrderStatusChanged(ctx context.Context, id, status string) error
}

const (
	defaultMaxWindowDays = 366
	defaultCacheSize     = 64
)

// cashFlowKey identifies a cash-flow series: any recorded transaction bumps
// the revision and a new day changes the window.
type cashFlowKey struct {
	revision uint64
	day      string
	window   int
}

// LedgerService orchestrates the shop ledger: it stamps records with ids and
// times, stores them, announces them and serves the reports.
type LedgerService struct {
	store     ledger.Store
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
	maxWindow int

	revision atomic.Uint64
	cashFlow *cache.LRUCache[cashFlowKey, []core.DayBucket]
	closers  []io.Closer
}

type Option func(*LedgerService)

// WithPublisher sets where events go. Without one, events are skipped.
func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) { s.newID = newID }
}

// WithMaxWindow caps the cash-flow window length in days, never above
// MaxWindowDays.
func WithMaxWindow(days int) Option {
	return func(s *LedgerService) {
		if days > 0 {
			s.maxWindow = min(days, MaxWindowDays)
		}
	}
}

// WithCashFlowCache sets the lifetime of cached cash-flow series.
func WithCashFlowCache(ttl time.Duration) Option {
	return func(s *LedgerService) {
		s.cashFlow = cache.NewLRUCache[cashFlowKey, []core.DayBucket](defaultCacheSize, ttl)
	}
}

// WithClosers registers resources released by Close, in order.
func WithClosers(closers ...io.Closer) Option {
	return func(s *LedgerService) { s.closers = append(s.closers, closers...) }
}

func NewLedgerService(store ledger.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		now:       time.Now,
		newID:     uuid.NewString,
		maxWindow: defaultMaxWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cashFlow == nil {
		s.cashFlow = cache.NewLRUCache[cashFlowKey, []core.DayBucket](defaultCacheSize, 5*time.Minute)
	}
	return s
}

// CashFlowCache exposes the cache so a janitor can sweep it.
func (s *LedgerService) CashFlowCache() cache.Cleaner {
	return s.cashFlow
}

// RecordTransaction stores a new transaction stamped with the current time.
func (s *LedgerService) RecordTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	t, err := core.NewTransaction(s.newID(), in, s.now())
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.AppendTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.revision.Add(1)

	slog.InfoContext(ctx, "Transaction recorded",
		applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithOperation(applog.OpCreate).
			WithTransaction(t.ID, t.Kind.String(), int64(t.Amount), t.Category).
			ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionRecorded(ctx, t.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish transaction event", "id", t.ID, "error", err)
		}
	}
	return t, nil
}

// PlaceOrder stores a new Pending order whose total is computed from its items.
func (s *LedgerService) PlaceOrder(ctx context.Context, in core.OrderInput) (core.Order, error) {
	o, err := core.NewOrder(s.newID(), in, s.now())
	if err != nil {
		return core.Order{}, err
	}
	if err := s.store.SaveOrder(ctx, o); err != nil {
		return core.Order{}, fmt.Errorf("save order: %w", err)
	}

	slog.InfoContext(ctx, "Order placed",
		applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithOperation(applog.OpCreate).
			WithOrder(o.ID, o.Status.String(), int64(o.Total)).
			ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, o.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish order event", "id", o.ID, "error", err)
		}
	}
	return o, nil
}

// AdvanceOrder moves an order to target. Concurrent calls on the same order
// are serialized by the store, so at most one of two identical requests wins.
func (s *LedgerService) AdvanceOrder(ctx context.Context, id string, target core.OrderStatus) (core.Order, error) {
	updated, err := s.store.UpdateOrder(ctx, id, func(current core.Order) (core.Order, error) {
		return ApplyTransition(current, target)
	})
	if err != nil {
		return core.Order{}, err
	}

	slog.InfoContext(ctx, "Order status changed",
		applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithOperation(applog.OpUpdate).
			WithOrder(updated.ID, updated.Status.String(), int64(updated.Total)).
			ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishOrderStatusChanged(ctx, updated.ID, updated.Status.String()); err != nil {
			slog.ErrorContext(ctx, "Failed to publish order event", "id", updated.ID, "error", err)
		}
	}
	return updated, nil
}

// AddProduct stores a new catalog entry.
func (s *LedgerService) AddProduct(ctx context.Context, in core.ProductInput) (core.Product, error) {
	p, err := core.NewProduct(s.newID(), in, s.now())
	if err != nil {
		return core.Product{}, err
	}
	if err := s.store.AddProduct(ctx, p); err != nil {
		return core.Product{}, fmt.Errorf("save product: %w", err)
	}
	return p, nil
}

// ListTransactions returns the transactions of one calendar day, newest
// first. A zero day means today.
func (s *LedgerService) ListTransactions(ctx context.Context, day core.Date) ([]core.Transaction, error) {
	if day.IsZero() {
		day = core.DateOf(s.now())
	}
	all, err := s.store.ListTransactions(ctx, day.Start())
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(all))
	for _, t := range all {
		if core.DateOf(t.OccurredAt).DaysSince(day) == 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListOrders returns the most recent orders; limit <= 0 returns all.
func (s *LedgerService) ListOrders(ctx context.Context, limit int) ([]core.Order, error) {
	return s.store.ListOrders(ctx, time.Time{}, limit)
}

func (s *LedgerService) ListProducts(ctx context.Context) ([]core.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *LedgerService) Categories(ctx context.Context, kind core.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	return s.store.Categories(ctx, kind)
}

// CashFlow returns windowDays daily buckets ending today, oldest first.
func (s *LedgerService) CashFlow(ctx context.Context, windowDays int) ([]core.DayBucket, error) {
	if windowDays <= 0 || windowDays > s.maxWindow {
		return nil, fmt.Errorf("%w: got %d, allowed 1..%d", ErrInvalidWindow, windowDays, s.maxWindow)
	}

	now := s.now()
	today := core.DateOf(now)
	key := cashFlowKey{revision: s.revision.Load(), day: today.String(), window: windowDays}
	if buckets, ok := s.cashFlow.Get(key); ok {
		return slices.Clone(buckets), nil
	}

	since := today.AddDays(-(windowDays - 1)).Start()
	txs, err := s.store.ListTransactions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	buckets, err := Aggregate(txs, windowDays, now)
	if err != nil {
		return nil, err
	}
	s.cashFlow.Set(key, slices.Clone(buckets))
	return buckets, nil
}

// Dashboard summarizes today's money movement, orders and catalog size.
func (s *LedgerService) Dashboard(ctx context.Context) (core.Dashboard, error) {
	now := s.now()
	today := core.DateOf(now)

	txs, err := s.store.ListTransactions(ctx, today.Start())
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list transactions: %w", err)
	}
	orders, err := s.store.ListOrders(ctx, today.Start(), 0)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list orders: %w", err)
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list products: %w", err)
	}

	txSummary, err := SummarizeTransactions(txs, now)
	if err != nil {
		return core.Dashboard{}, err
	}
	orderSummary, err := SummarizeOrders(orders, now)
	if err != nil {
		return core.Dashboard{}, err
	}

	return core.Dashboard{
		Date:         today,
		ProductCount: len(products),
		Transactions: txSummary,
		Orders:       orderSummary,
	}, nil
}

// Close releases the registered resources.
func (s *LedgerService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
