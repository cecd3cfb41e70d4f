package server

import (
	"context"
	_ "embed"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/maruaican/Quick-Folder-Deleter/internal/auth"
	"github.com/maruaican/Quick-Folder-Deleter/internal/config"
	"github.com/maruaican/Quick-Folder-Deleter/internal/database"
	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/metrics"
	"github.com/maruaican/Quick-Folder-Deleter/internal/safety"
	"github.com/maruaican/Quick-Folder-Deleter/internal/server/api"
	"github.com/maruaican/Quick-Folder-Deleter/internal/server/middleware"
	"github.com/maruaican/Quick-Folder-Deleter/internal/server/websocket"
)

const (
	ReadHeaderTimeout = 15 * time.Second
	IdleTimeout       = 60 * time.Second
	ShutdownTimeout   = 10 * time.Second // streams keep their consumers this long
	DrainTimeout      = 2 * time.Minute  // then detached deletions get this long
	maxBodyBytes      = 1 << 20
	limiterCleanup    = 10 * time.Minute
)

//go:embed index.html
var indexHTML []byte

// Options carries the collaborators of a Server. History is optional: without
// it nothing is recorded and the history routes are not mounted.
type Options struct {
	Logger  *log.Logger
	History *database.HistoryDB
	Fs      afero.Fs
}

// Server exposes deletions over SSE and WebSocket and serves the operator page
type Server struct {
	cfg       *config.Config
	logger    *log.Logger
	validator *safety.Validator
	fs        afero.Fs
	history   *database.HistoryDB
	recorder  *database.Recorder
	hub       *websocket.Hub
	jwt       *auth.JWTManager
	limiter   *middleware.RateLimiter
	slots     chan struct{}
	router    *mux.Router

	shutdownTimeout time.Duration
	drainTimeout    time.Duration

	running sync.WaitGroup
	ctx     context.Context
	stop    context.CancelFunc
}

// New builds the server and starts its monitor hub. Call Close when done.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	metrics.Init()

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		logger:    opts.Logger,
		validator: safety.FromConfig(cfg),
		fs:        opts.Fs,
		history:   opts.History,
		hub:       websocket.NewHub(opts.Logger),
		limiter: middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, limiterCleanup,
			cfg.TrustedProxies()...),
		shutdownTimeout: ShutdownTimeout,
		drainTimeout:    DrainTimeout,
		ctx:             ctx,
		stop:            stop,
	}
	if opts.History != nil {
		s.recorder = database.NewRecorder(opts.History, opts.Logger)
	}
	if cfg.AuthEnabled() {
		s.jwt = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	}
	if cfg.Server.MaxStreams > 0 {
		s.slots = make(chan struct{}, cfg.Server.MaxStreams)
	}

	go s.hub.Run(ctx)
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub is the monitor fan-out every operation reports to
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(s.logger))
	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.RequestBodySizeLimitMiddleware(maxBodyBytes))

	router.HandleFunc("/", s.handleIndex).Methods("GET", "HEAD")
	router.Handle("/api/v1/health", middleware.CORSMiddleware(http.HandlerFunc(api.HealthHandler))).Methods("GET", "HEAD")
	if s.cfg.MetricsOnMainRouter() {
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	router.Handle("/stream", s.deletes(http.HandlerFunc(s.handleSSE))).Methods("GET")
	router.Handle("/ws/stream", s.deletes(http.HandlerFunc(s.handleWebSocketStream))).Methods("GET")
	router.Handle("/ws/monitor", s.guard(auth.PermissionMonitor, websocket.HandleMonitor(s.ctx, s.hub))).Methods("GET")

	if s.history != nil {
		router.Handle("/api/v1/operations",
			s.reads(auth.PermissionViewHistory, api.OperationsHandler(s.history, s.logger))).Methods("GET")
		router.Handle("/api/v1/operations/{id}/items",
			s.reads(auth.PermissionViewHistory, api.OperationItemsHandler(s.history, s.logger))).Methods("GET")
	}

	return router
}

// guard wraps h with authentication when it is configured
func (s *Server) guard(permission string, h http.Handler) http.Handler {
	if s.jwt != nil {
		h = middleware.AuthMiddleware(s.jwt)(middleware.RequirePermission(permission)(h))
	}
	return h
}

// deletes guards a route that starts deletions: same origin only, rate
// limited per client, no CORS
func (s *Server) deletes(h http.Handler) http.Handler {
	h = s.guard(auth.PermissionDelete, h)
	h = s.limiter.Middleware()(h)
	return middleware.SameOriginMiddleware(h)
}

// reads guards a read-only API route other origins may query
func (s *Server) reads(permission string, h http.Handler) http.Handler {
	return middleware.CORSMiddleware(s.guard(permission, h))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	w.Write(indexHTML)
}

// Run serves HTTP on the configured address until ctx is done. Shutdown
// then happens in two phases: open streams get the shutdown timeout to finish
// with their consumers attached, after which they are detached and running
// deletions get the drain timeout to complete. Run returns only after that,
// so the caller may close the history database.
func (s *Server) Run(ctx context.Context) error {
	requests, detach := context.WithCancel(context.Background())
	defer detach()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return requests },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[INFO] HTTP server listening on %s", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Println("[INFO] shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Println("[WARN] streams still open at shutdown, detaching their consumers")
		err = nil
	}
	detach()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancelDrain()
	if werr := s.Wait(drainCtx); werr != nil {
		s.logger.Printf("[WARN] deletions still running after drain: %v", werr)
	}
	return err
}

// Wait blocks until every started operation has finished or ctx is done
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the monitor hub and the rate limiter
func (s *Server) Close() {
	s.stop()
	s.limiter.Stop()
}

func (s *Server) observers() []events.Observer {
	var obs []events.Observer
	if s.recorder != nil {
		obs = append(obs, s.recorder)
	}
	return append(obs, s.hub)
}
