// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/events"
	"github.com/xkilldash9x/consentscan/internal/store"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	persistTimeout         = 10 * time.Second
	requestTimeout         = 60 * time.Second
)

// Scanner runs a single scan and streams its events. *orchestrator.Orchestrator
// satisfies it.
type Scanner interface {
	NewScanID() string
	RunWithID(ctx context.Context, scanID string, req schemas.ScanRequest, emitter events.Emitter) (*schemas.ScanResult, error)
}

// Server hosts the HTTP API and the websocket event channel.
type Server struct {
	cfg      config.ServerConfig
	scanCfg  config.ScanConfig
	logger   *zap.Logger
	scanner  Scanner
	repo     store.Repository
	registry *ScanRegistry
	sem      *semaphore.Weighted
	upgrader websocket.Upgrader
	now      func() time.Time

	// baseCtx outlives requests; every scan and websocket client derives from it.
	baseCtx context.Context
	cancel  context.CancelFunc
	scans   sync.WaitGroup

	// mu orders launch against Close; no scan is added once closed is set.
	mu     sync.Mutex
	closed bool
}

// New creates a Server. repo may be nil, in which case results are not
// persisted and the history endpoint is unavailable.
func New(cfg *config.Config, scanner Scanner, repo store.Repository, logger *zap.Logger) (*Server, error) {
	if cfg == nil || scanner == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize server with nil dependencies")
	}
	limit := cfg.Server.MaxConcurrentScans
	if limit <= 0 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg.Server,
		scanCfg:  cfg.Scan,
		logger:   logger.Named("server"),
		scanner:  scanner,
		repo:     repo,
		registry: NewScanRegistry(cfg.Server.RetainJobs),
		sem:      semaphore.NewWeighted(int64(limit)),
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Registry exposes the in-memory job registry.
func (s *Server) Registry() *ScanRegistry { return s.registry }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// Websocket upgrades stay outside the timeout and request logging.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Use(middleware.Timeout(requestTimeout))
		s.registerRoutes(r)
	})
	return r
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := listenAddr(s.cfg.ListenAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully: in-flight requests drain, running scans are cancelled and
// awaited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server starting", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server gracefully...")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		s.Close()
		s.logger.Info("Server stopped.")
		return err
	})
	return g.Wait()
}

// Close cancels every running scan and websocket client and waits for the
// scans to finish.
func (s *Server) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cancel()
	}
	s.mu.Unlock()
	s.scans.Wait()
}

// register records a pending job and fills the request's unset options.
func (s *Server) register(req schemas.ScanRequest) (ScanJob, schemas.ScanRequest) {
	job := s.registry.Register(s.scanner.NewScanID(), req.URL)
	req.Options = s.scanCfg.Options(req.Options)
	return job, req
}

// launch runs a registered job in the background under ctx. After Close the
// job is finished as cancelled without running.
func (s *Server) launch(ctx context.Context, scanID string, req schemas.ScanRequest, emitter events.Emitter) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Info("Server is shutting down, scan not started.", zap.String("scanID", scanID))
		s.abandon(scanID, emitter, context.Canceled)
		return
	}
	s.scans.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.scans.Done()
		s.execute(ctx, scanID, req, emitter)
	}()
}

func (s *Server) execute(ctx context.Context, scanID string, req schemas.ScanRequest, emitter events.Emitter) {
	logger := s.logger.With(zap.String("scanID", scanID))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		logger.Info("Scan cancelled before it started.")
		s.abandon(scanID, emitter, err)
		return
	}
	defer s.sem.Release(1)

	s.registry.MarkRunning(scanID)
	startedAt := s.now()
	result, err := s.scanner.RunWithID(ctx, scanID, req, emitter)
	if err != nil {
		logger.Warn("Scan finished without a result", zap.Error(err))
	}
	if result != nil {
		s.persist(ctx, store.StoredScan{
			ID:         scanID,
			StartedAt:  startedAt,
			FinishedAt: s.now(),
			Result:     *result,
		})
	}
	s.registry.Finish(scanID, result, err)
}

// abandon reports a job that never ran and finishes it with err.
func (s *Server) abandon(scanID string, emitter events.Emitter, err error) {
	reporter := events.NewReporter(scanID, emitter)
	reporter.Error("scan cancelled")
	reporter.Done()
	s.registry.Finish(scanID, nil, err)
}

func (s *Server) persist(ctx context.Context, scan store.StoredScan) {
	if s.repo == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.repo.SaveResult(saveCtx, scan); err != nil {
		s.logger.Error("Failed to persist scan result", zap.String("scanID", scan.ID), zap.Error(err))
	}
}

// corsMiddleware answers for the configured dashboard origins only.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin admits non-browser clients (no Origin header) and allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.originAllowed(origin)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())))
	})
}

// listenAddr prefers the PORT environment variable used by most hosts.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return configured
}
