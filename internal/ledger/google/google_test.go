package google

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"warung/internal/core"
)

func TestNewClient_MissingSpreadsheetID(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewClient_MissingCredentialsFile(t *testing.T) {
	_, err := NewClient(context.Background(), Options{
		SpreadsheetID:      "sheet-id",
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
	if !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewClient_DefaultSheetNames(t *testing.T) {
	c := newClient(nil, "id", "", " ")
	if c.transactionsSheet != "Transaksi" || c.salesSheet != "Penjualan" {
		t.Errorf("unexpected defaults %q %q", c.transactionsSheet, c.salesSheet)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Transaksi", 2024, "2024 Transaksi"},
		{"  Penjualan ", 2025, "2025 Penjualan"},
		{"2023 Transaksi", 2024, "2023 Transaksi"},
		{"1234Transaksi", 2024, "2024 1234Transaksi"},
		{"", 2024, ""},
	}

	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestTransactionRow(t *testing.T) {
	// 23:30 UTC is already the next day in the reference zone.
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	tx, err := core.NewTransaction("tx-1", core.TransactionInput{
		Kind: core.KindExpense, Amount: 25000, Category: "Makan", Note: "nasi bungkus",
	}, at)
	if err != nil {
		t.Fatal(err)
	}

	row := transactionRow(tx)
	want := []any{"2024-03-10", "06:30", "Pengeluaran", "Makan", int64(25000), "nasi bungkus", "tx-1"}
	if len(row) != len(want) {
		t.Fatalf("row has %d columns, want %d", len(row), len(want))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestSaleRow(t *testing.T) {
	o, err := core.NewOrder("order-1", core.OrderInput{
		CustomerName:   "Bu Sri",
		CustomerPhone:  "0812",
		DeliveryMethod: core.DeliveryPickup,
		Items: []core.OrderItem{
			{ProductID: "p1", ProductName: "Bayam", Quantity: 2, UnitPrice: 5000},
			{ProductID: "p2", Quantity: 1, UnitPrice: 12000},
		},
	}, time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}

	row := saleRow(o)
	if row[0] != "2024-03-10" || row[1] != "order-1" || row[2] != "Bu Sri" {
		t.Errorf("unexpected head %v", row[:3])
	}
	if row[3] != "Bayam x2, p2 x1" {
		t.Errorf("items = %v", row[3])
	}
	if row[4] != int64(22000) {
		t.Errorf("total = %v", row[4])
	}
	if row[5] != "pickup" {
		t.Errorf("delivery = %v", row[5])
	}
}

func TestExport_Validation(t *testing.T) {
	c := newClient(nil, "id", "", "")
	ctx := context.Background()

	_, err := c.ExportTransaction(ctx, core.Transaction{ID: "x", Kind: core.KindIncome, Amount: 1})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}

	pending, err := core.NewOrder("o1", core.OrderInput{
		CustomerName:   "Pak Budi",
		DeliveryMethod: core.DeliveryCourier,
		Items:          []core.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 1000}},
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExportSale(ctx, pending); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("pending order should not export as a sale, got %v", err)
	}

	tx, err := core.NewTransaction("t1", core.TransactionInput{Kind: core.KindIncome, Amount: 1, Category: "Jasa"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExportTransaction(ctx, tx); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected uninitialized service error, got %v", err)
	}
}
