package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warung/internal/amqp"
	"warung/internal/core"
	"warung/internal/storage"
)

type fakeExporter struct {
	mu    sync.Mutex
	txs   []string
	sales []string
	fail  error
}

func (f *fakeExporter) ExportTransaction(_ context.Context, t core.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.txs = append(f.txs, t.ID)
	return "Transaksi!A1", nil
}

func (f *fakeExporter) ExportSale(_ context.Context, o core.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sales = append(f.sales, o.ID)
	return "Penjualan!A1", nil
}

var base = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*storage.SQLiteRepository, *fakeExporter, *SyncWorker) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "warung.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	exp := &fakeExporter{}
	return repo, exp, NewSyncWorker(repo, exp, 10)
}

func addTransaction(t *testing.T, repo *storage.SQLiteRepository, id string, offset time.Duration) {
	t.Helper()
	tx, err := core.NewTransaction(id, core.TransactionInput{Kind: core.KindExpense, Amount: 5000, Category: "Makan"}, base.Add(offset))
	require.NoError(t, err)
	require.NoError(t, repo.AppendTransaction(context.Background(), tx))
}

func addOrder(t *testing.T, repo *storage.SQLiteRepository, id string, status core.OrderStatus) {
	t.Helper()
	ctx := context.Background()
	o, err := core.NewOrder(id, core.OrderInput{
		CustomerName:   "Bu Sri",
		DeliveryMethod: core.DeliveryPickup,
		Items:          []core.OrderItem{{ProductID: "p1", ProductName: "Bayam", Quantity: 3, UnitPrice: 5000}},
	}, base)
	require.NoError(t, err)
	require.NoError(t, repo.SaveOrder(ctx, o))
	if status != core.StatusPending {
		_, err := repo.UpdateOrder(ctx, id, func(o core.Order) (core.Order, error) {
			o.Status = status
			return o, nil
		})
		require.NoError(t, err)
	}
}

func TestHandleMessage_Transaction(t *testing.T) {
	ctx := context.Background()
	repo, exp, w := setup(t)
	addTransaction(t, repo, "t1", 0)

	msg := amqp.NewLedgerEventMessage(amqp.EventTransactionRecorded, "t1", "")
	require.NoError(t, w.HandleMessage(ctx, msg))
	// A redelivered event does not append a second row.
	require.NoError(t, w.HandleMessage(ctx, msg))

	assert.Equal(t, []string{"t1"}, exp.txs)
	done, err := repo.TransactionSynced(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHandleMessage_UnknownRecordIsDropped(t *testing.T) {
	_, exp, w := setup(t)

	err := w.HandleMessage(context.Background(), amqp.NewLedgerEventMessage(amqp.EventTransactionRecorded, "ghost", ""))
	assert.NoError(t, err)
	assert.Empty(t, exp.txs)
}

func TestHandleMessage_ExportFailureRequeues(t *testing.T) {
	ctx := context.Background()
	repo, exp, w := setup(t)
	addTransaction(t, repo, "t1", 0)
	exp.fail = errors.New("quota exceeded")

	err := w.HandleMessage(ctx, amqp.NewLedgerEventMessage(amqp.EventTransactionRecorded, "t1", ""))
	require.Error(t, err)

	done, err := repo.TransactionSynced(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestHandleMessage_Orders(t *testing.T) {
	ctx := context.Background()
	repo, exp, w := setup(t)
	addOrder(t, repo, "o1", core.StatusPending)
	addOrder(t, repo, "o2", core.StatusDelivered)

	require.NoError(t, w.HandleMessage(ctx, amqp.NewLedgerEventMessage(amqp.EventOrderPlaced, "o1", "pending")))
	require.NoError(t, w.HandleMessage(ctx, amqp.NewLedgerEventMessage(amqp.EventOrderStatusChanged, "o1", "confirmed")))
	assert.Empty(t, exp.sales)

	// A stale event claiming delivery does not export an undelivered order.
	require.NoError(t, w.HandleMessage(ctx, amqp.NewLedgerEventMessage(amqp.EventOrderStatusChanged, "o1", "delivered")))
	assert.Empty(t, exp.sales)

	msg := amqp.NewLedgerEventMessage(amqp.EventOrderStatusChanged, "o2", "delivered")
	require.NoError(t, w.HandleMessage(ctx, msg))
	require.NoError(t, w.HandleMessage(ctx, msg))
	assert.Equal(t, []string{"o2"}, exp.sales)
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	repo, exp, w := setup(t)
	for i, id := range []string{"t1", "t2", "t3"} {
		addTransaction(t, repo, id, time.Duration(i)*time.Minute)
	}
	addOrder(t, repo, "o1", core.StatusDelivered)
	addOrder(t, repo, "o2", core.StatusConfirmed)

	n, err := w.ProcessPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"t1", "t2"}, exp.txs)
	assert.Equal(t, []string{"o1"}, exp.sales)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Equal(t, []string{"t1", "t2", "t3"}, exp.txs)

	n, err = w.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessPending_ReportsFailures(t *testing.T) {
	ctx := context.Background()
	repo, exp, w := setup(t)
	addTransaction(t, repo, "t1", 0)
	exp.fail = errors.New("sheet missing")

	n, err := w.ProcessPending(ctx, 10)
	assert.Error(t, err)
	assert.Zero(t, n)

	exp.fail = nil
	n, err = w.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo, exp, w := setup(t)
	addTransaction(t, repo, "t1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		exp.mu.Lock()
		defer exp.mu.Unlock()
		return len(exp.txs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
