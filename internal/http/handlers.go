package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"warung/internal/core"
	applog "warung/internal/log"
	"warung/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady verifies the store answers a lightweight query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if _, err := s.ledger.ListProducts(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes a few counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.limiter.mu.Lock()
	activeClients := len(s.limiter.clients)
	s.limiter.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", s.limiter.hits.Load())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", activeClients)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.suspicious.Load())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, d)
}

func (s *Server) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r.URL.Query(), "days", s.cashFlowDays)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	buckets, err := s.ledger.CashFlow(r.Context(), days)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, cashFlowResponse{
		Days:         days,
		Buckets:      buckets,
		MaxMagnitude: services.MaxMagnitude(buckets),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r.URL.Query(), "date")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), day)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newList(txs))
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	t, err := s.ledger.RecordTransaction(r.Context(), in)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Transaction rejected",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldError, err)
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, t)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit", 0)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if limit < 0 {
		writeError(r.Context(), w, fmt.Errorf("%w: limit must not be negative", core.ErrInvalidArgument))
		return
	}
	orders, err := s.ledger.ListOrders(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newList(orders))
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	o, err := s.ledger.PlaceOrder(r.Context(), in)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, o)
}

func (s *Server) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	target, err := core.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	o, err := s.ledger.AdvanceOrder(r.Context(), id, target)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, o)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.ledger.ListProducts(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newList(products))
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	p, err := s.ledger.AddProduct(r.Context(), req.toInput())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, p)
}

// handleCategories lists the categories offered for a kind; ?kind defaults to expense.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("kind")
	if strings.TrimSpace(raw) == "" {
		raw = core.KindExpense.String()
	}
	kind, err := core.ParseKind(raw)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	cats, err := s.ledger.Categories(r.Context(), kind)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newList(cats))
}
