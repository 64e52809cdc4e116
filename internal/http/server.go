package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"foodlog/internal/core"
	"foodlog/internal/live"
	"foodlog/internal/log"
	"foodlog/internal/middleware/ratelimit"
	"foodlog/internal/middleware/security"
	"foodlog/internal/services"
)

// FoodAPI is what the server needs from the food service.
type FoodAPI interface {
	AddFood(ctx context.Context, day core.Day, name string) (int, error)
	RemoveOne(ctx context.Context, day core.Day, name string) (int, error)
	EntriesForDate(ctx context.Context, day core.Day) ([]core.FoodEntry, error)
	Subscribe(ctx context.Context, day core.Day) (*live.Subscription, error)
	RecentNames(ctx context.Context) ([]string, error)
	PopularNames(ctx context.Context) ([]string, error)
	PopularNamesSince(ctx context.Context, since core.Day) ([]string, error)
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (services.ImportResult, error)
	Ping(ctx context.Context) error
}

// Options tunes a Server.
type Options struct {
	Logger                 *log.Logger
	WriteRequestsPerMinute int
	MaxImportBytes         int64
	// KeepAlive is the interval of SSE comment pings.
	KeepAlive time.Duration
	// BaseContext, when set, parents every request context so open
	// streams end when it is cancelled.
	BaseContext context.Context
}

type Server struct {
	http.Server
	api         FoodAPI
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	maxImport   int64
	keepAlive   time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(addr string, api FoodAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	maxImport := opts.MaxImportBytes
	if maxImport <= 0 {
		maxImport = 10 << 20
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}

	s := &Server{
		api:    api,
		logger: logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.WriteRequestsPerMinute,
		}),
		maxImport: maxImport,
		keepAlive: keepAlive,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/days/{date}/entries", s.handleListEntries)
	mux.HandleFunc("POST /api/days/{date}/entries", s.handleAddEntry)
	mux.HandleFunc("DELETE /api/days/{date}/entries/{name}", s.handleRemoveEntry)
	mux.HandleFunc("GET /api/days/{date}/stream", s.handleStream)
	mux.HandleFunc("GET /api/names/recent", s.handleRecentNames)
	mux.HandleFunc("GET /api/names/popular", s.handlePopularNames)
	mux.HandleFunc("GET /api/export.csv", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)

	clientIP := security.NewClientIP()
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(clientIP.Extract, nil)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	if opts.BaseContext != nil {
		base := opts.BaseContext
		s.Server.BaseContext = func(net.Listener) context.Context { return base }
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
