package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/view"
)

const (
	summaryCacheSize    = 256
	summaryCacheTTL     = 5 * time.Minute
	cacheCleanupEvery   = 10 * time.Minute
	readyTimeout        = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 15 * time.Second
)

// Store is the ledger surface the API needs. *ledger.Ledger satisfies it.
type Store interface {
	ledger.Reader
	ledger.Writer
	ledger.Feed
	Snapshot(ctx context.Context, from, to int64) (ledger.Snapshot, error)
}

// Options tune a Server. Zero values pick defaults.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	// Ready reports whether dependencies such as the database are usable.
	Ready func(context.Context) error
	Now   func() time.Time
}

// summaryKey pairs the criteria with the ledger sequence the cached
// summary reflects, so any commit makes older entries unreachable.
type summaryKey struct {
	seq      uint64
	criteria core.Criteria
}

// Server is the ledger JSON API. The embedded http.Server is ready to
// ListenAndServe; Shutdown also stops the background loops.
type Server struct {
	http.Server

	store   Store
	binder  *view.Binder
	logger  *log.Logger
	journal *log.StructuredLogger
	ready   func(context.Context) error
	now     func() time.Time
	started time.Time

	summaries *cache.LRU[summaryKey, summaryJSON]
	cleaner   *cache.Manager
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware

	writes atomic.Int64

	stopBackground context.CancelFunc
	shutdownOnce   sync.Once
}

// NewServer wires routes and middleware. The binder stays observed for the
// server's lifetime so GET /api/view always has a live projection.
func NewServer(addr string, store Store, binder *view.Binder, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		store:     store,
		binder:    binder,
		logger:    logger,
		journal:   log.NewStructuredLogger(logger),
		ready:     opts.Ready,
		now:       now,
		started:   now(),
		summaries: cache.NewLRU[summaryKey, summaryJSON](summaryCacheSize, summaryCacheTTL),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	s.cleaner = cache.NewManager(s.summaries)
	s.cleaner.Start(ctx, cacheCleanupEvery)
	if binder != nil {
		binder.Observe(ctx)
	}

	s.Server = http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/transactions", s.handleCreate)
	api.HandleFunc("GET /api/transactions", s.handleList)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGet)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdate)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDelete)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("GET /api/view", s.handleView)
	api.HandleFunc("PUT /api/view/criteria", s.handleSetCriteria)

	chain := chainMiddleware(api,
		s.tracer.Handler,
		log.Middleware(s.logger, trace.RequestID),
		security.Headers(security.DefaultHeadersConfig()),
		s.detector.Block(func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusBadRequest, "bad_request", "request rejected").Write(w)
		}),
		s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate_limited", "too many requests").Write(w)
		}),
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.HandleFunc("GET /metrics", s.handleMetrics)
	root.Handle("/", chain)
	return root
}

// chainMiddleware applies mws so that the first one is outermost.
func chainMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Shutdown stops background loops and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopBackground()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
		s.cleaner.Wait()
	})
	return err
}
