package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"warung/internal/core"
	"warung/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps every record in memory. It is the reference backend: nothing
// survives a restart.
type Store struct {
	mu           sync.Mutex
	cats         map[core.Kind][]string
	transactions []core.Transaction
	orders       []core.Order
	products     []core.Product
}

func New(income, expense []string) *Store {
	return &Store{cats: map[core.Kind][]string{
		core.KindIncome:  dedupe(income),
		core.KindExpense: dedupe(expense),
	}}
}

// NewFromFiles seeds categories from base/seed_income_categories.txt and
// base/seed_expense_categories.txt, falling back to the defaults.
func NewFromFiles(base string) *Store {
	income := readLines(filepath.Join(base, "seed_income_categories.txt"))
	expense := readLines(filepath.Join(base, "seed_expense_categories.txt"))
	if len(income) == 0 {
		income = core.DefaultCategories(core.KindIncome)
	}
	if len(expense) == 0 {
		expense = core.DefaultCategories(core.KindExpense)
	}
	return New(income, expense)
}

func (s *Store) AppendTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions {
		if existing.ID == t.ID {
			return fmt.Errorf("transaction %q: %w", t.ID, ledger.ErrConflict)
		}
	}
	s.transactions = append(s.transactions, t)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %q: %w", id, ledger.ErrNotFound)
}

func (s *Store) ListTransactions(_ context.Context, since time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if !t.OccurredAt.Before(since) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	return out, nil
}

func (s *Store) SaveOrder(_ context.Context, o core.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOrder(o.ID) >= 0 {
		return fmt.Errorf("order %q: %w", o.ID, ledger.ErrConflict)
	}
	s.orders = append(s.orders, o.Clone())
	return nil
}

// UpdateOrder holds the store lock across read, mutate and write, which
// serializes concurrent status changes of the same order.
func (s *Store) UpdateOrder(_ context.Context, id string, mutate ledger.OrderMutation) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOrder(id)
	if i < 0 {
		return core.Order{}, fmt.Errorf("order %q: %w", id, ledger.ErrNotFound)
	}
	updated, err := mutate(s.orders[i].Clone())
	if err != nil {
		return core.Order{}, err
	}
	if updated.ID != id {
		return core.Order{}, fmt.Errorf("order %q: mutation changed the id: %w", id, ledger.ErrConflict)
	}
	s.orders[i] = updated.Clone()
	return updated, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOrder(id)
	if i < 0 {
		return core.Order{}, fmt.Errorf("order %q: %w", id, ledger.ErrNotFound)
	}
	return s.orders[i].Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, since time.Time, limit int) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if !o.PlacedAt.Before(since) {
			out = append(out, o.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b core.Order) int {
		return b.PlacedAt.Compare(a.PlacedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AddProduct(_ context.Context, p core.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.products, func(existing core.Product) bool { return existing.ID == p.ID }) {
		return fmt.Errorf("product %q: %w", p.ID, ledger.ErrConflict)
	}
	s.products = append([]core.Product{p}, s.products...)
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products), nil
}

// Categories returns the categories offered for kind.
func (s *Store) Categories(_ context.Context, kind core.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cats[kind]), nil
}

func (s *Store) indexOrder(id string) int {
	return slices.IndexFunc(s.orders, func(o core.Order) bool { return o.ID == id })
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, preserving input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
