package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cajero/internal/core"
	"cajero/internal/ledger"
	"cajero/internal/log"
	"cajero/internal/metrics"
	"cajero/internal/middleware/ratelimit"
	"cajero/internal/middleware/security"
	"cajero/internal/middleware/trace"
	"cajero/internal/view"
)

const limiterCleanupInterval = 5 * time.Minute

// Terminal is the session the API drives.
type Terminal interface {
	Login(ctx context.Context, pin string) error
	Logout(ctx context.Context)
	Authenticated() bool
	Account() core.Account
	LastTransaction() (core.Transaction, bool)
	Deposit(ctx context.Context, req ledger.DepositRequest) (core.Transaction, error)
	Withdraw(ctx context.Context, req ledger.WithdrawalRequest) (core.Transaction, error)
	PayService(ctx context.Context, req ledger.ServicePaymentRequest) (core.Transaction, error)
	InquireBalance(ctx context.Context) (core.Transaction, error)
}

// Config wires the server. Only Terminal is required.
type Config struct {
	Addr      string
	Terminal  Terminal
	Projector *view.Projector
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	// LoginRatePerMinute bounds POST /session per client IP.
	LoginRatePerMinute int
	// AllowedOrigins enables CORS for browser front ends when not empty.
	AllowedOrigins []string
	TrustedProxies []string
	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	terminal     Terminal
	projector    *view.Projector
	logger       *log.Logger
	events       *log.StructuredLogger
	detector     *security.Detector
	loginLimiter *ratelimit.Limiter
	ready        func(context.Context) error

	stopCleanup  context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	projector := cfg.Projector
	if projector == nil {
		projector = view.NewProjector()
	}

	s := &Server{
		terminal:     cfg.Terminal,
		projector:    projector,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		detector:     security.NewDetector(logger),
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.LoginRatePerMinute}),
		ready:        cfg.Ready,
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	var observer trace.Observer
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}
	tracer := trace.NewMiddleware(logger, s.detector.ExtractClientIP, observer)

	r := chi.NewRouter()
	r.Use(tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError(msgNotFound).Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		MethodNotAllowedError(allowedMethods(r, req.URL.Path)).Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.With(s.loginLimiter.Middleware(s.detector.ExtractClientIP, s.writeRateLimited)).
		Post("/session", s.handleLogin)
	r.Delete("/session", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/account", s.handleAccount)
		r.Post("/deposits", s.handleDeposit)
		r.Post("/withdrawals", s.handleWithdrawal)
		r.Post("/payments", s.handlePayment)
		r.Post("/inquiries", s.handleInquiry)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/transactions/summary", s.handleSummary)
		r.Get("/receipt", s.handleReceipt)
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	go func() { _ = s.loginLimiter.Run(ctx, limiterCleanupInterval) }()

	return s
}

// allowedMethods lists the methods routed for path, for the Allow header.
func allowedMethods(routes chi.Routes, path string) string {
	var allowed []string
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		if routes.Match(chi.NewRouteContext(), m, path) {
			allowed = append(allowed, m)
		}
	}
	return strings.Join(allowed, ", ")
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopCleanup()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
