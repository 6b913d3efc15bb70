package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"warung/internal/core"
	"warung/internal/ledger"

	_ "modernc.org/sqlite"
)

var (
	_ ledger.Store       = (*SQLiteRepository)(nil)
	_ ledger.SyncTracker = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db *sql.DB
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection makes every write, and every UpdateOrder
	// read-modify-write, run one at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// AppendTransaction implements ledger.TransactionWriter
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, kind, amount, category, note, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Kind.String(), int64(t.Amount), t.Category, t.Note, t.OccurredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapConstraint(err))
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"kind", t.Kind.String(),
		"amount", int64(t.Amount),
		"category", t.Category)

	return nil
}

// GetTransaction implements ledger.TransactionReader
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, kind, amount, category, note, occurred_at FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions implements ledger.TransactionReader
func (r *SQLiteRepository) ListTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, amount, category, note, occurred_at FROM transactions
		 WHERE occurred_at >= ? ORDER BY occurred_at DESC, id`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// PendingSyncTransactions implements ledger.SyncTracker
func (r *SQLiteRepository) PendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, amount, category, note, occurred_at FROM transactions
		 WHERE synced_at IS NULL ORDER BY occurred_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// MarkTransactionSynced implements ledger.SyncTracker
func (r *SQLiteRepository) MarkTransactionSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET synced_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %q: %w", id, ledger.ErrNotFound)
	}

	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// TransactionSynced implements ledger.SyncTracker
func (r *SQLiteRepository) TransactionSynced(ctx context.Context, id string) (bool, error) {
	return r.synced(ctx, `SELECT synced_at IS NOT NULL FROM transactions WHERE id = ?`, "transaction", id)
}

// PendingSales implements ledger.SyncTracker
func (r *SQLiteRepository) PendingSales(ctx context.Context, limit int) ([]core.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_name, customer_phone, total, status, delivery_method, placed_at FROM orders
		 WHERE status = 'delivered' AND sale_synced_at IS NULL ORDER BY placed_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sales: %w", err)
	}
	return r.collectOrders(ctx, rows)
}

// MarkSaleSynced implements ledger.SyncTracker
func (r *SQLiteRepository) MarkSaleSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET sale_synced_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark sale synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %q: %w", id, ledger.ErrNotFound)
	}

	slog.InfoContext(ctx, "Sale marked as synced", "id", id)
	return nil
}

// SaleSynced implements ledger.SyncTracker
func (r *SQLiteRepository) SaleSynced(ctx context.Context, id string) (bool, error) {
	return r.synced(ctx, `SELECT sale_synced_at IS NOT NULL FROM orders WHERE id = ?`, "order", id)
}

func (r *SQLiteRepository) synced(ctx context.Context, query, what, id string) (bool, error) {
	var done bool
	err := r.db.QueryRowContext(ctx, query, id).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s %q: %w", what, id, ledger.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("check %s sync: %w", what, err)
	}
	return done, nil
}

// SaveOrder implements ledger.OrderWriter
func (r *SQLiteRepository) SaveOrder(ctx context.Context, o core.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_name, customer_phone, total, status, delivery_method, placed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerName, o.CustomerPhone, int64(o.Total), o.Status.String(), o.DeliveryMethod.String(),
		o.PlacedAt.UnixNano(), o.PlacedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert order: %w", mapConstraint(err))
	}
	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, i, it.ProductID, it.ProductName, it.Quantity, int64(it.UnitPrice))
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}

	slog.InfoContext(ctx, "Order saved to SQLite", "id", o.ID, "total", int64(o.Total), "items", len(o.Items))
	return nil
}

// UpdateOrder implements ledger.OrderWriter. Only the status is persisted;
// the other fields of an order are immutable.
func (r *SQLiteRepository) UpdateOrder(ctx context.Context, id string, mutate ledger.OrderMutation) (core.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Order{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getOrder(ctx, tx, id)
	if err != nil {
		return core.Order{}, err
	}
	updated, err := mutate(current.Clone())
	if err != nil {
		return core.Order{}, err
	}
	if updated.ID != id {
		return core.Order{}, fmt.Errorf("order %q: mutation changed the id: %w", id, ledger.ErrConflict)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		updated.Status.String(), time.Now().UnixNano(), id, current.Status.String())
	if err != nil {
		return core.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return core.Order{}, fmt.Errorf("order %q: %w", id, ledger.ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return core.Order{}, fmt.Errorf("commit order update: %w", err)
	}

	slog.InfoContext(ctx, "Order status updated",
		"id", id,
		"from", current.Status.String(),
		"to", updated.Status.String())

	return updated, nil
}

// GetOrder implements ledger.OrderReader
func (r *SQLiteRepository) GetOrder(ctx context.Context, id string) (core.Order, error) {
	return getOrder(ctx, r.db, id)
}

// ListOrders implements ledger.OrderReader
func (r *SQLiteRepository) ListOrders(ctx context.Context, since time.Time, limit int) ([]core.Order, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_name, customer_phone, total, status, delivery_method, placed_at FROM orders
		 WHERE placed_at >= ? ORDER BY placed_at DESC, id LIMIT ?`, since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return r.collectOrders(ctx, rows)
}

// collectOrders scans and closes rows, then loads the items of each order.
// Items are loaded after the cursor is closed: the pool holds a single
// connection.
func (r *SQLiteRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]core.Order, error) {
	var orders []core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	for i := range orders {
		items, err := loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// AddProduct implements ledger.ProductCatalog
func (r *SQLiteRepository) AddProduct(ctx context.Context, p core.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, price, stock, unit, category, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, int64(p.Price), p.Stock, string(p.Unit), p.Category, p.Description, p.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert product: %w", mapConstraint(err))
	}
	return nil
}

// ListProducts implements ledger.ProductCatalog
func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]core.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price, stock, unit, category, description, created_at FROM products
		 ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []core.Product
	for rows.Next() {
		var (
			p       core.Product
			price   int64
			unit    string
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock, &unit, &p.Category, &p.Description, &created); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Price = core.Money(price)
		p.Unit = core.Unit(unit)
		p.CreatedAt = fromNanos(created)
		products = append(products, p)
	}
	return products, rows.Err()
}

// Categories implements ledger.TaxonomyReader
func (r *SQLiteRepository) Categories(ctx context.Context, kind core.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM categories WHERE kind = ? ORDER BY position, name`, kind.String())
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		kind     string
		amount   int64
		occurred int64
	)
	if err := s.Scan(&t.ID, &kind, &amount, &t.Category, &t.Note, &occurred); err != nil {
		return core.Transaction{}, err
	}
	k, err := core.ParseKind(kind)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", t.ID, err)
	}
	t.Kind = k
	t.Amount = core.Money(amount)
	t.OccurredAt = fromNanos(occurred)
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanOrder(s scanner) (core.Order, error) {
	var (
		o        core.Order
		total    int64
		status   string
		delivery string
		placed   int64
	)
	if err := s.Scan(&o.ID, &o.CustomerName, &o.CustomerPhone, &total, &status, &delivery, &placed); err != nil {
		return core.Order{}, err
	}
	st, err := core.ParseOrderStatus(status)
	if err != nil {
		return core.Order{}, fmt.Errorf("order %q: %w", o.ID, err)
	}
	dm, err := core.ParseDeliveryMethod(delivery)
	if err != nil {
		return core.Order{}, fmt.Errorf("order %q: %w", o.ID, err)
	}
	o.Total = core.Money(total)
	o.Status = st
	o.DeliveryMethod = dm
	o.PlacedAt = fromNanos(placed)
	return o, nil
}

func getOrder(ctx context.Context, q queryer, id string) (core.Order, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, customer_name, customer_phone, total, status, delivery_method, placed_at FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Order{}, fmt.Errorf("order %q: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = loadItems(ctx, q, id); err != nil {
		return core.Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q queryer, orderID string) ([]core.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []core.OrderItem
	for rows.Next() {
		var (
			it    core.OrderItem
			price int64
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.UnitPrice = core.Money(price)
		items = append(items, it)
	}
	return items, rows.Err()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// mapConstraint turns primary key violations into ledger.ErrConflict.
func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Join(ledger.ErrConflict, err)
	}
	return err
}
