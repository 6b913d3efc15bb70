package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"warung/internal/core"
)

func TestAmountField(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    core.Money
		wantErr bool
	}{
		{name: "number", input: `15000`, want: 15000},
		{name: "plain string", input: `"15000"`, want: 15000},
		{name: "rupiah string", input: `"Rp 150.000"`, want: 150000},
		{name: "zero", input: `0`, want: 0},
		{name: "negative number", input: `-5`, wantErr: true},
		{name: "negative string", input: `"-5"`, wantErr: true},
		{name: "fraction", input: `12.5`, wantErr: true},
		{name: "garbage", input: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a amountField
			err := json.Unmarshal([]byte(tt.input), &a)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidArgument) {
					t.Fatalf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if core.Money(a) != tt.want {
				t.Errorf("amount = %d, want %d", a, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"kind":"income","amount":1,"category":"Jasa"}`},
		{name: "unknown field", body: `{"kind":"income","amount":1,"colour":"red"}`, wantErr: true},
		{name: "trailing data", body: `{"kind":"income"}{"kind":"expense"}`, wantErr: true},
		{name: "malformed", body: `{"kind":`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var req transactionRequest
			err := decodeJSON(w, r, &req)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidArgument) {
					t.Fatalf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransactionRequest_ToInput(t *testing.T) {
	req := transactionRequest{Kind: "Pengeluaran", Amount: 2000, Category: "  Makan\x00 ", Note: "es teh"}
	in, err := req.toInput()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Kind != core.KindExpense || in.Category != "Makan" || in.Amount != 2000 {
		t.Errorf("unexpected input %+v", in)
	}

	if _, err := (transactionRequest{Kind: "gift"}).toInput(); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("expected invalid kind, got %v", err)
	}
}

func TestOrderRequest_ToInput(t *testing.T) {
	req := orderRequest{
		CustomerName:   "Bu Sri",
		DeliveryMethod: "Delivery",
		Items:          []orderItemRequest{{ProductID: "p1", Quantity: 2, UnitPrice: 5000}},
	}
	in, err := req.toInput()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.DeliveryMethod != core.DeliveryCourier || len(in.Items) != 1 || in.Items[0].UnitPrice != 5000 {
		t.Errorf("unexpected input %+v", in)
	}

	req.DeliveryMethod = "drone"
	if _, err := req.toInput(); !errors.Is(err, core.ErrInvalidDeliveryMethod) {
		t.Errorf("expected invalid delivery method, got %v", err)
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"days": {"14"}, "bad": {"x"}}

	if n, err := queryInt(q, "days", 7); err != nil || n != 14 {
		t.Errorf("queryInt(days) = %d, %v", n, err)
	}
	if n, err := queryInt(q, "missing", 7); err != nil || n != 7 {
		t.Errorf("queryInt(missing) = %d, %v", n, err)
	}
	if _, err := queryInt(q, "bad", 7); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("queryInt(bad) error = %v", err)
	}
}

func TestQueryDate(t *testing.T) {
	d, err := queryDate(url.Values{"date": {"2024-03-10"}}, "date")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-03-10" {
		t.Errorf("date = %v", d)
	}

	d, err = queryDate(url.Values{}, "date")
	if err != nil || !d.IsZero() {
		t.Errorf("absent date = %v, %v", d, err)
	}

	if _, err := queryDate(url.Values{"date": {"10/03/2024"}}, "date"); err == nil {
		t.Error("expected error for malformed date")
	}
}
