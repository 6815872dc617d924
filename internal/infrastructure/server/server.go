package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	handlers "github.com/GriffinCanCode/cdpgate/internal/api/http"
	"github.com/GriffinCanCode/cdpgate/internal/api/middleware"
	"github.com/GriffinCanCode/cdpgate/internal/api/ws"
	"github.com/GriffinCanCode/cdpgate/internal/domain/browser"
	"github.com/GriffinCanCode/cdpgate/internal/domain/diagnostics"
	"github.com/GriffinCanCode/cdpgate/internal/domain/endpoint"
	"github.com/GriffinCanCode/cdpgate/internal/domain/pages"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	monitor    *pages.Monitor
	tap        *diagnostics.Tap
	supervisor *browser.Supervisor
	relay      *ws.Relay
	router     *gin.Engine
	http       *http.Server
}

type options struct {
	launcher browser.Launcher
	prober   browser.Prober
	version  string
}

// Option customizes server construction.
type Option func(*options)

// WithLauncher replaces the go-rod launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithProber replaces the loopback health prober.
func WithProber(p browser.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithVersion sets the version reported at /.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.launcher == nil {
		o.launcher = browser.NewRodLauncher(logger.Component("launcher"))
	}
	if o.prober == nil {
		o.prober = browser.NewLoopbackProber(cfg.Browser.DebugPort, browser.DefaultProbeTimeout)
	}

	logger.Info("Initializing cdpgate",
		zap.String("addr", cfg.Addr()),
		zap.String("mode", cfg.Tunnel.Mode),
		zap.String("public_host", cfg.PublicHost()),
		zap.Int("debug_port", cfg.Browser.DebugPort),
		zap.Duration("page_max_age", cfg.Pages.MaxAge()),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("cdpgate", logger.Component("access"))

	monitor := pages.NewMonitor(cfg.Pages.MaxAge(), logger.Component("pages"),
		pages.WithMetrics(metrics),
	)
	tap := diagnostics.New(diagnostics.Config{
		Enabled:    cfg.Diagnostics.Enabled,
		Network:    cfg.Diagnostics.Network,
		MaxTextLen: cfg.Diagnostics.MaxTextLen,
	}, logger.Component("diagnostics"), metrics)

	supervisor := browser.NewSupervisor(browser.Config{
		Launch: browser.LaunchOptions{
			Bin:       cfg.Browser.Bin,
			DebugPort: cfg.Browser.DebugPort,
			Headless:  cfg.Browser.Headless,
			Leakless:  cfg.Browser.Leakless,
			MaxHeapMB: cfg.Browser.MaxHeapMB,
			Timeout:   cfg.Browser.LaunchTimeout,
		},
		FailureThreshold: cfg.Browser.FailureThreshold,
		Cooldown:         cfg.Browser.Cooldown,
	}, o.launcher, monitor, logger.Component("supervisor"),
		browser.WithObserver(tap),
		browser.WithProber(o.prober),
		browser.WithMetrics(metrics),
	)

	relay := ws.NewRelay(ws.Config{
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		CloseGrace:       cfg.Relay.CloseGrace,
	}, supervisor, logger.Component("relay"), metrics)

	h := handlers.NewHandlers(
		handlers.Config{Version: o.version, Mode: cfg.Tunnel.Mode},
		supervisor,
		relay,
		endpoint.Rewriter{Host: cfg.PublicHost(), Scheme: cfg.Tunnel.Scheme},
		handlers.NewHandlerMetrics(metrics),
		logger.Component("http"),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.UpgradeGate(ws.PathPrefix, logger.Component("http")))

	cdp := []gin.HandlerFunc{h.CDP}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		cdp = append([]gin.HandlerFunc{limit}, cdp...)
	}

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/cdp", cdp...)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET(ws.PathPrefix+"*path", relay.Handle)

	logger.Info("Server initialized successfully")

	return &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		monitor:    monitor,
		tap:        tap,
		supervisor: supervisor,
		relay:      relay,
		router:     router,
		http: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Supervisor returns the browser supervisor.
func (s *Server) Supervisor() *browser.Supervisor {
	return s.supervisor
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.Server.MaxConnections)
	}
	s.logger.Info("Starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", s.config.Server.MaxConnections),
	)

	if s.config.Browser.LaunchOnStart {
		go s.warmUp(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(fmt.Errorf("http server: %w", err), s.Shutdown(shutdownCtx))
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) warmUp(ctx context.Context) {
	if _, err := s.supervisor.EnsureRunning(ctx); err != nil {
		s.logger.Warn("Browser launch on start failed", zap.Error(err))
	}
}

// Shutdown stops accepting requests, closes relay sessions and the browser.
// It is bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error

	s.relay.CloseAll(websocket.CloseGoingAway, "server shutting down")
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.relay.Wait(ctx); err != nil {
		s.logger.Warn("Relay sessions still open at shutdown", zap.Int("active", s.relay.Active()))
		errs = append(errs, fmt.Errorf("relay drain: %w", err))
	}
	if err := s.supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("browser shutdown: %w", err))
	}
	s.tap.Stop()
	s.tracer.Close()

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown incomplete", zap.Error(err))
		_ = s.logger.Sync()
		return err
	}

	s.logger.Info("Shutdown complete")
	_ = s.logger.Sync()
	return nil
}
