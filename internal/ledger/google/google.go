// Package google exports ledger records to a Google Sheets spreadsheet.
//
// Every record lands on a year-prefixed sheet ("2024 Transaksi") chosen by
// the calendar year of the record in core.ReferenceZone, so a new year starts
// a fresh tab without reconfiguration.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"warung/internal/core"
	"warung/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ledger.TransactionExporter = (*Client)(nil)

// Options configures a Client.
type Options struct {
	SpreadsheetID string
	// Base sheet names without the year.
	TransactionsSheet string
	SalesSheet        string
	// Credentials: inline JSON wins over the file path.
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	salesSheet        string
}

// NewClient creates a Sheets client authenticated with a service account.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := serviceAccountCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully", "spreadsheet_id", spreadsheetID)
	return newClient(svc, spreadsheetID, opts.TransactionsSheet, opts.SalesSheet), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, transactions, sales string) *Client {
	if strings.TrimSpace(transactions) == "" {
		transactions = "Transaksi"
	}
	if strings.TrimSpace(sales) == "" {
		sales = "Penjualan"
	}
	return &Client{
		svc:               svc,
		spreadsheetID:     spreadsheetID,
		transactionsSheet: strings.TrimSpace(transactions),
		salesSheet:        strings.TrimSpace(sales),
	}
}

func serviceAccountCredentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.ServiceAccountJSON)
	file := strings.TrimSpace(opts.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// ExportTransaction implements ledger.TransactionExporter
func (c *Client) ExportTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	sheet := yearPrefixedName(c.transactionsSheet, core.DateOf(t.OccurredAt).Year())
	return c.appendRow(ctx, sheet, "A:G", transactionRow(t))
}

// ExportSale implements ledger.TransactionExporter. Only delivered orders
// are sales.
func (c *Client) ExportSale(ctx context.Context, o core.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if o.Status != core.StatusDelivered {
		return "", fmt.Errorf("%w: order %s is %s, not delivered", core.ErrInvalidArgument, o.ID, o.Status)
	}
	sheet := yearPrefixedName(c.salesSheet, core.DateOf(o.PlacedAt).Year())
	return c.appendRow(ctx, sheet, "A:G", saleRow(o))
}

func (c *Client) appendRow(ctx context.Context, sheet, cols string, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

var kindLabels = map[core.Kind]string{
	core.KindIncome:  "Pemasukan",
	core.KindExpense: "Pengeluaran",
}

// transactionRow lays out: Tanggal, Jam, Jenis, Kategori, Jumlah, Catatan, ID.
func transactionRow(t core.Transaction) []any {
	local := t.OccurredAt.In(core.ReferenceZone)
	return []any{
		local.Format("2006-01-02"),
		local.Format("15:04"),
		kindLabels[t.Kind],
		t.Category,
		int64(t.Amount),
		t.Note,
		t.ID,
	}
}

// saleRow lays out: Tanggal, Pesanan, Pelanggan, Barang, Total, Pengiriman, Telepon.
func saleRow(o core.Order) []any {
	return []any{
		core.DateOf(o.PlacedAt).String(),
		o.ID,
		o.CustomerName,
		itemsSummary(o.Items),
		int64(o.Total),
		o.DeliveryMethod.String(),
		o.CustomerPhone,
	}
}

func itemsSummary(items []core.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		name := it.ProductName
		if name == "" {
			name = it.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s x%d", name, it.Quantity))
	}
	return strings.Join(parts, ", ")
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
