package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"warung/internal/core"
	applog "warung/internal/log"
)

// Ledger is the set of ledger operations the API exposes.
type Ledger interface {
	RecordTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	PlaceOrder(ctx context.Context, in core.OrderInput) (core.Order, error)
	AdvanceOrder(ctx context.Context, id string, target core.OrderStatus) (core.Order, error)
	AddProduct(ctx context.Context, in core.ProductInput) (core.Product, error)
	ListTransactions(ctx context.Context, day core.Date) ([]core.Transaction, error)
	ListOrders(ctx context.Context, limit int) ([]core.Order, error)
	ListProducts(ctx context.Context) ([]core.Product, error)
	Categories(ctx context.Context, kind core.Kind) ([]string, error)
	CashFlow(ctx context.Context, windowDays int) ([]core.DayBucket, error)
	Dashboard(ctx context.Context) (core.Dashboard, error)
}

type Server struct {
	http.Server
	ledger       Ledger
	limiter      *rateLimiter
	suspicious   atomic.Int64
	cashFlowDays int
	started      time.Time

	stopLimiter  context.CancelFunc
	shutdownOnce sync.Once
}

type Options struct {
	// CashFlowDays is the window served when ?days is absent.
	CashFlowDays int
	Logger       *applog.Logger
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.CashFlowDays <= 0 {
		opts.CashFlowDays = 7
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		ledger:       ledger,
		limiter:      newRateLimiter(),
		cashFlowDays: opts.CashFlowDays,
		started:      time.Now(),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/cashflow", s.handleCashFlow)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleRecordTransaction)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", s.handleAdvanceOrder)
	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("POST /api/products", s.handleAddProduct)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           applog.Middleware(opts.Logger)(s.withSecurity(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel
	go s.limiter.run(ctx)

	return s
}

// Shutdown stops the background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopLimiter()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
