// Package browser supervises the single browser process behind the gateway.
//
// The Supervisor launches the browser on demand, detects when it goes away and
// relaunches it lazily on the next EnsureRunning call. There is no retry
// loop; a launch circuit breaker stops repeated failing launches from piling
// up on an unhealthy host.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/cdpgate/internal/domain/pages"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/resilience"
)

// Config holds supervisor settings.
type Config struct {
	Launch           LaunchOptions
	FailureThreshold int
	Cooldown         time.Duration
	HealthTimeout    time.Duration
	CloseTimeout     time.Duration
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Connected     bool   `json:"connected"`
	DebugPort     int    `json:"debugPort"`
	ControlURL    string `json:"controlUrl,omitempty"`
	Generation    uint64 `json:"generation"`
	PID           int    `json:"pid,omitempty"`
	OpenPages     int    `json:"openPages"`
	TrackedTimers int    `json:"trackedTimers"`
	PageTimeoutMS int64  `json:"pageTimeoutMs"`
}

// Supervisor owns the browser lifecycle.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	monitor  *pages.Monitor
	observer Observer
	prober   Prober
	breaker  *resilience.Breaker
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	group singleflight.Group
	wg    sync.WaitGroup

	mu         sync.Mutex
	handle     *Handle
	generation uint64
	closed     bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithObserver attaches a lifecycle observer such as the diagnostics tap.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observer = o }
}

// WithProber enables health probing of the debug HTTP server.
func WithProber(p Prober) Option {
	return func(s *Supervisor) { s.prober = p }
}

// WithMetrics records launches and disconnects.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// NewSupervisor creates a supervisor. No browser is started until
// EnsureRunning is called.
func NewSupervisor(cfg Config, launcher Launcher, monitor *pages.Monitor, logger *zap.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultProbeTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.Launch.Timeout <= 0 {
		cfg.Launch.Timeout = 30 * time.Second
	}

	s := &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		monitor:  monitor,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	threshold := uint32(cfg.FailureThreshold)
	s.breaker = resilience.New("browser-launch", resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Launch circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// DebugPort returns the browser's loopback debug port.
func (s *Supervisor) DebugPort() int {
	return s.cfg.Launch.DebugPort
}

// Current returns the live handle, or nil.
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.Connected() {
		return s.handle
	}
	return nil
}

// EnsureRunning returns the live browser, launching one if needed.
// Concurrent callers share a single launch. Failures are *LaunchError.
func (s *Supervisor) EnsureRunning(ctx context.Context) (*Handle, error) {
	h, err := s.healthy(ctx)
	if err != nil || h != nil {
		return h, err
	}

	ch := s.group.DoChan("launch", func() (interface{}, error) {
		return s.launch(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, launchError("wait", ctx.Err())
	}
}

func (s *Supervisor) healthy(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	h, closed := s.handle, s.closed
	s.mu.Unlock()

	if closed {
		return nil, launchError("closed", ErrClosed)
	}
	if !h.Connected() {
		return nil, nil
	}
	if s.prober == nil {
		return h, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()
	if _, err := s.prober.Version(pctx); err != nil {
		if ctx.Err() != nil {
			return nil, launchError("health", ctx.Err())
		}
		s.logger.Warn("Browser failed health probe, replacing it",
			zap.Uint64("generation", h.Generation),
			zap.Error(err),
		)
		s.invalidate(h, "health probe failed")
		return nil, nil
	}
	return h, nil
}

func (s *Supervisor) launch(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, launchError("closed", ErrClosed)
	}
	stale := s.handle
	s.mu.Unlock()

	if stale.Connected() {
		// A launch finished between our check and joining the flight.
		return stale, nil
	}
	if stale != nil {
		s.invalidate(stale, "replaced")
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Launch.Timeout)
	defer cancel()

	start := time.Now()
	var conn Conn
	err := s.breaker.Execute(func() error {
		c, err := s.launcher.Launch(lctx, s.cfg.Launch)
		if err != nil {
			return err
		}
		if c.ControlURL() == "" {
			_ = c.Close(lctx)
			return ErrNoEndpoint
		}
		conn = c
		return nil
	})
	s.metrics.RecordLaunch(err, time.Since(start))

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			s.logger.Warn("Browser launch skipped, circuit open",
				zap.Duration("retry_after", s.breaker.RetryAfter()),
			)
			return nil, launchError("circuit open", fmt.Errorf("%w, retry in %s", err, s.breaker.RetryAfter().Round(time.Second)))
		}
		s.logger.Error("Browser launch failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, launchError("start", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(lctx)
		return nil, launchError("closed", ErrClosed)
	}
	s.generation++
	h := newHandle(conn, s.cfg.Launch.DebugPort, s.generation)
	s.handle = h
	if s.observer != nil {
		s.observer.Attach(conn)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(h)

	s.logger.Info("Browser ready",
		zap.Uint64("generation", h.Generation),
		zap.Int("pid", h.PID),
		zap.Int("debug_port", h.DebugPort),
		zap.String("control_url", h.ControlURL),
		zap.Duration("elapsed", time.Since(start)),
	)
	return h, nil
}

// watch consumes target events for one browser generation and tears the
// generation down when its event stream ends.
func (s *Supervisor) watch(h *Handle) {
	defer s.wg.Done()

	s.seed(h)
	for ev := range h.conn.Events() {
		s.dispatch(h, ev)
	}
	h.connected.Store(false)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Warn("Browser disconnected", zap.Uint64("generation", h.Generation))
	s.invalidate(h, "disconnected")
}

// seed tracks pages that existed before target discovery was enabled.
func (s *Supervisor) seed(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthTimeout)
	defer cancel()

	targets, err := h.conn.Targets(ctx)
	if err != nil {
		s.logger.Debug("Could not list existing targets", zap.Error(err))
		return
	}
	for _, t := range targets {
		t.Kind = TargetCreated
		s.dispatch(h, t)
	}
}

func (s *Supervisor) dispatch(h *Handle, ev TargetEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != h {
		return
	}

	switch ev.Kind {
	case TargetCreated:
		if ev.IsPage() {
			s.monitor.Track(ev.TargetID, pageCloser(h.conn, ev.TargetID))
		}
	case TargetDestroyed:
		s.monitor.Untrack(ev.TargetID)
	}

	if s.observer != nil {
		s.observer.Observe(ev)
	}
}

func pageCloser(conn Conn, targetID string) pages.Closer {
	return func(ctx context.Context) error {
		return conn.ClosePage(ctx, targetID)
	}
}

// invalidate retires h if it is still the current handle: page timers are
// cancelled, diagnostics detached and the process closed.
func (s *Supervisor) invalidate(h *Handle, reason string) {
	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	s.handle = nil
	h.connected.Store(false)
	// Cleared before unlocking so a relaunch cannot attach in between.
	s.monitor.Reset()
	if s.observer != nil {
		s.observer.Detach()
	}
	s.mu.Unlock()

	s.metrics.RecordDisconnect()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()
	if err := h.conn.Close(ctx); err != nil {
		s.logger.Debug("Closing retired browser failed", zap.Error(err))
	}

	s.logger.Info("Browser handle released",
		zap.Uint64("generation", h.Generation),
		zap.String("reason", reason),
	)
}

// Shutdown cancels page timers, stops diagnostics, closes the browser and
// then releases the handle. It is safe to call more than once, and with no
// browser running.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	h := s.handle
	s.monitor.Reset()
	if s.observer != nil {
		s.observer.Detach()
	}
	s.mu.Unlock()

	var err error
	if h != nil {
		h.connected.Store(false)
		if cerr := h.conn.Close(ctx); cerr != nil {
			err = fmt.Errorf("close browser: %w", cerr)
		}
		s.metrics.SetBrowserConnected(false)
		s.logger.Info("Browser shut down", zap.Uint64("generation", h.Generation))
	}

	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("wait for browser watcher: %w", ctx.Err())
		}
	}
	return err
}

// Status reports connectivity and page counts.
func (s *Supervisor) Status(ctx context.Context) Status {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	st := Status{
		DebugPort:     s.cfg.Launch.DebugPort,
		TrackedTimers: s.monitor.Count(),
		PageTimeoutMS: s.monitor.MaxAge().Milliseconds(),
	}
	if !h.Connected() {
		return st
	}

	st.Connected = true
	st.ControlURL = h.ControlURL
	st.Generation = h.Generation
	st.PID = h.PID
	st.OpenPages = st.TrackedTimers

	if s.prober != nil {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
		defer cancel()
		targets, err := s.prober.Targets(pctx)
		if err != nil {
			s.logger.Debug("Listing targets failed", zap.Error(err))
			return st
		}
		st.OpenPages = CountPages(targets)
	}
	return st
}
