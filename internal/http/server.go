// Package http serves the tenant portal and the admin page as server-side
// rendered HTML with htmx partials.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sewa/internal/cache"
	"sewa/internal/core"
	"sewa/internal/log"
	"sewa/internal/middleware/ratelimit"
	"sewa/internal/middleware/security"
	"sewa/internal/middleware/trace"
	"sewa/internal/services"
	appweb "sewa/web"
)

const namesCacheKey = "names"

// BillingService is what the handlers need from the service layer.
type BillingService interface {
	Identify(ctx context.Context, name, credential string) (services.Identity, error)
	Quote(ctx context.Context, sub services.Submission) (services.Quote, error)
	Submit(ctx context.Context, sub services.Submission) (core.BillingRecord, error)
	History(ctx context.Context, name, credential string) (core.Tenant, []core.BillingRecord, error)
	RegisterTenant(ctx context.Context, reg services.Registration) (services.Registered, error)
	Names(ctx context.Context) ([]string, error)
	LoginRequired() bool
	Currency() string
	Rate() decimal.Decimal
	Units() []string
	RoomTypes() []string
}

// ReadyFunc reports whether the backing store can serve requests.
type ReadyFunc func(ctx context.Context) error

type Server struct {
	http.Server
	templates *template.Template
	svc       BillingService
	ready     ReadyFunc
	logger    *log.Logger
	started   time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	metrics  *Metrics

	// Tenant names for the identity picker. Ledger reads are never cached.
	names  cache.Cache[[]string]
	caches *cache.Manager

	shutdownOnce sync.Once
}

// Options tunes a Server. Zero values select defaults.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	NamesTTL  time.Duration
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, svc BillingService, ready ReadyFunc, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.RateLimit.RequestsPerMinute == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.NamesTTL <= 0 {
		opts.NamesTTL = 5 * time.Minute
	}
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}

	s := &Server{
		svc:      svc,
		ready:    ready,
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		metrics:  newMetrics(),
		caches:   cache.NewManager(),
	}
	names := cache.NewLRUCache[[]string](1, opts.NamesTTL)
	s.names = names
	s.caches.Register(names)
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs(svc.Currency())).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", "error", err, log.FieldOperation, log.OpStartup)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /portal/names", s.handleNames)
	mux.HandleFunc("POST /portal/identify", s.handleIdentify)
	mux.HandleFunc("POST /portal/quote", s.handleQuote)
	mux.HandleFunc("POST /portal/submit", s.handleSubmit)
	mux.HandleFunc("POST /portal/history", s.handleHistory)
	mux.HandleFunc("GET /admin", s.handleAdmin)
	mux.HandleFunc("POST /admin/tenants", s.handleRegisterTenant)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.handler())

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = s.detector.Middleware(func(reason string) {
		s.metrics.suspicious.WithLabelValues(reason).Inc()
	})(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = trace.NewMiddleware(s.detector.ExtractClientIP, s.metrics.observe).Middleware(h)
	h = log.Middleware(opts.Logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.rateLimited.Inc()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please wait a minute and try again.").Write(w)
}

// Shutdown stops background goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// tenantNames returns the cached name list, loading it on a miss.
func (s *Server) tenantNames(ctx context.Context) ([]string, error) {
	names, hit, err := s.names.Load(ctx, namesCacheKey, s.svc.Names)
	if hit {
		s.metrics.namesCache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.namesCache.WithLabelValues("miss").Inc()
	}
	return names, err
}

func (s *Server) invalidateNames() {
	s.names.Delete(namesCacheKey)
}
