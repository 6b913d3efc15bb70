package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warung/internal/core"
	"warung/internal/ledger/memory"
	"warung/internal/services"
)

// 2024-03-10 09:00 WIB
var fixedNow = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New(core.DefaultCategories(core.KindIncome), core.DefaultCategories(core.KindExpense))
	svc := services.NewLedgerService(store, services.WithClock(func() time.Time { return fixedNow }))
	srv := NewServer(":0", svc, Options{CashFlowDays: 7})
	t.Cleanup(func() { srv.stopLimiter() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := do(t, srv, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, w.Code)
		}
	}

	w := do(t, srv, http.MethodGet, "/healthz", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestTransactions(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/transactions",
		`{"kind":"income","amount":"Rp 15.000","category":"Penjualan","note":"sayur"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	created := decode[core.Transaction](t, w)
	if created.ID == "" || created.Amount != 15000 || created.Kind != core.KindIncome {
		t.Errorf("unexpected transaction %+v", created)
	}

	w = do(t, srv, http.MethodGet, "/api/transactions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	list := decode[listResponse[core.Transaction]](t, w)
	if list.Count != 1 || list.Items[0].ID != created.ID {
		t.Errorf("unexpected list %+v", list)
	}

	w = do(t, srv, http.MethodGet, "/api/transactions?date=2024-03-09", "")
	if list := decode[listResponse[core.Transaction]](t, w); list.Count != 0 {
		t.Errorf("expected no transactions the day before, got %d", list.Count)
	}

	w = do(t, srv, http.MethodGet, "/api/transactions?date=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status=%d", w.Code)
	}
}

func TestTransactions_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"gift","amount":1,"category":"x"}`},
		{"negative amount", `{"kind":"income","amount":-1,"category":"x"}`},
		{"empty category", `{"kind":"income","amount":1,"category":"  "}`},
		{"unknown field", `{"kind":"income","amount":1,"category":"x","extra":true}`},
		{"not json", `kind=income`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/transactions", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if body := decode[errorResponse](t, w); body.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/orders", `{
		"customer_name": "Bu Sri",
		"customer_phone": "0812",
		"delivery_method": "pickup",
		"items": [
			{"product_id": "p1", "product_name": "Bayam", "quantity": 2, "unit_price": 5000},
			{"product_id": "p2", "product_name": "Tomat", "quantity": 1, "unit_price": "12.000"}
		]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("place status=%d body=%s", w.Code, w.Body.String())
	}
	order := decode[core.Order](t, w)
	if order.Status != core.StatusPending || order.Total != 22000 {
		t.Fatalf("unexpected order %+v", order)
	}

	path := "/api/orders/" + order.ID + "/status"

	w = do(t, srv, http.MethodPost, path, `{"status":"delivered"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("skip status=%d", w.Code)
	}
	w = do(t, srv, http.MethodPost, path, `{"status":"confirmed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status=%d body=%s", w.Code, w.Body.String())
	}
	w = do(t, srv, http.MethodPost, path, `{"status":"delivered"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("deliver status=%d", w.Code)
	}
	if got := decode[core.Order](t, w); got.Status != core.StatusDelivered {
		t.Errorf("status = %v", got.Status)
	}
	w = do(t, srv, http.MethodPost, path, `{"status":"pending"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("reopen status=%d", w.Code)
	}
	w = do(t, srv, http.MethodPost, path, `{"status":"shipped"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown status=%d", w.Code)
	}
	w = do(t, srv, http.MethodPost, "/api/orders/missing/status", `{"status":"confirmed"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing order status=%d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/orders?limit=5", "")
	if list := decode[listResponse[core.Order]](t, w); list.Count != 1 {
		t.Errorf("orders = %d", list.Count)
	}
	w = do(t, srv, http.MethodGet, "/api/orders?limit=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status=%d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/dashboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d", w.Code)
	}
	dash := decode[core.Dashboard](t, w)
	if dash.Orders.Count != 1 || dash.Orders.Revenue != 22000 {
		t.Errorf("unexpected dashboard %+v", dash)
	}
}

func TestOrder_Validation(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/orders",
		`{"customer_name":"Pak Budi","delivery_method":"pickup","items":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty items status=%d", w.Code)
	}
	w = do(t, srv, http.MethodPost, "/api/orders",
		`{"customer_name":"Pak Budi","delivery_method":"pickup","items":[{"product_id":"p","quantity":0,"unit_price":1}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero quantity status=%d", w.Code)
	}
}

func TestCashFlow(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/api/transactions", `{"kind":"income","amount":10000,"category":"Penjualan"}`)
	do(t, srv, http.MethodPost, "/api/transactions", `{"kind":"expense","amount":25000,"category":"Makan"}`)

	w := do(t, srv, http.MethodGet, "/api/cashflow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[cashFlowResponse](t, w)
	if resp.Days != 7 || len(resp.Buckets) != 7 {
		t.Fatalf("unexpected window %d/%d", resp.Days, len(resp.Buckets))
	}
	last := resp.Buckets[6]
	if last.Date.String() != "2024-03-10" || last.Income != 10000 || last.Expense != 25000 || last.Balance != -15000 {
		t.Errorf("unexpected today bucket %+v", last)
	}
	if resp.MaxMagnitude != 25000 {
		t.Errorf("max magnitude = %d", resp.MaxMagnitude)
	}

	for _, q := range []string{"days=0", "days=-3", "days=abc", "days=100000"} {
		w := do(t, srv, http.MethodGet, "/api/cashflow?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status=%d", q, w.Code)
		}
	}
}

func TestProductsAndCategories(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/products",
		`{"name":"Bayam","price":"5.000","stock":20,"unit":"ikat","category":"Sayur"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	w = do(t, srv, http.MethodPost, "/api/products", `{"name":"Bayam","price":1,"stock":1,"unit":"ton"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad unit status=%d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/products", "")
	if list := decode[listResponse[core.Product]](t, w); list.Count != 1 || list.Items[0].Price != 5000 {
		t.Errorf("unexpected products %+v", list)
	}

	w = do(t, srv, http.MethodGet, "/api/categories?kind=income", "")
	cats := decode[listResponse[string]](t, w)
	if cats.Count != 3 || cats.Items[0] != "Penjualan" {
		t.Errorf("unexpected income categories %+v", cats)
	}
	w = do(t, srv, http.MethodGet, "/api/categories", "")
	if cats := decode[listResponse[string]](t, w); cats.Count != 5 {
		t.Errorf("unexpected default categories %+v", cats)
	}
	w = do(t, srv, http.MethodGet, "/api/categories?kind=gift", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad kind status=%d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < rateLimitRequests; i++ {
		w := do(t, srv, http.MethodPost, "/api/categories", "")
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i+1)
		}
	}
	w := do(t, srv, http.MethodPost, "/api/transactions", `{}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", w.Code)
	}

	// Reads are not limited.
	if w := do(t, srv, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("read status=%d", w.Code)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := newRateLimiter()
	now := fixedNow
	rl.now = func() time.Time { return now }

	for i := 0; i < rateLimitRequests; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d denied", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("expected limit")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("other client limited")
	}

	now = now.Add(rateLimitWindow + time.Second)
	if !rl.allow("10.0.0.1") {
		t.Error("expected new window")
	}

	now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	if len(rl.clients) != 0 {
		t.Errorf("stale entries left: %d", len(rl.clients))
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"203.0.113.5:1234", "1.2.3.4", "203.0.113.5"},
		{"10.0.0.1:1234", "1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"127.0.0.1:80", "", "127.0.0.1"},
		{"10.0.0.1:1234", "not-an-ip", "10.0.0.1"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := extractClientIP(r); got != tt.want {
			t.Errorf("extractClientIP(%s, %q) = %s, want %s", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("sanitizeInput = %q", got)
	}
}

func TestSuspiciousRequestsAreCounted(t *testing.T) {
	srv := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	r.Header.Set("User-Agent", "sqlmap/1.7")
	srv.Handler.ServeHTTP(httptest.NewRecorder(), r)
	do(t, srv, http.MethodGet, "/.env", "")
	do(t, srv, http.MethodGet, "/api/products", "")

	if got := srv.suspicious.Load(); got != 2 {
		t.Errorf("suspicious = %d, want 2", got)
	}
	w := do(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), "suspicious_requests_total 2") {
		t.Errorf("metrics missing counter:\n%s", w.Body.String())
	}
}
