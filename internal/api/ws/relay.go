package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gobwas/ws"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/cdpgate/internal/shared/id"
)

// PathPrefix is the only path upgrades are accepted on.
const PathPrefix = "/devtools/"

// PortSource supplies the browser's loopback debug port.
type PortSource interface {
	DebugPort() int
}

// Config bounds relay handshakes and teardown.
type Config struct {
	HandshakeTimeout time.Duration
	CloseGrace       time.Duration
}

// Relay bridges client WebSocket sessions to the browser's debug socket.
type Relay struct {
	cfg      Config
	ports    PortSource
	upgrader gws.HTTPUpgrader
	dialer   gws.Dialer
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	sessions map[id.RelayID]*session
	closing  bool
	wg       sync.WaitGroup
}

// NewRelay creates a relay dialing the port reported by ports.
func NewRelay(cfg Config, ports PortSource, logger *zap.Logger, metrics *monitoring.Metrics) *Relay {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 2 * time.Second
	}
	// No origin check: CDP clients are not browsers.
	return &Relay{
		cfg:      cfg,
		ports:    ports,
		upgrader: gws.HTTPUpgrader{Timeout: cfg.HandshakeTimeout},
		dialer:   gws.Dialer{Timeout: cfg.HandshakeTimeout},
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		sessions: make(map[id.RelayID]*session),
	}
}

// Handle is the gin handler for GET /devtools/*path.
func (r *Relay) Handle(c *gin.Context) {
	r.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and relays it until either side closes.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	closing := r.closing
	if !closing {
		r.wg.Add(1)
	}
	r.mu.Unlock()
	if closing {
		r.metrics.RelayRejected("shutting_down")
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	defer r.wg.Done()

	conn, rw, _, err := r.upgrader.Upgrade(req, w)
	if err != nil {
		// Upgrade has already written the HTTP error.
		if conn != nil {
			_ = conn.Close()
		}
		r.metrics.RelayRejected("upgrade_failed")
		r.logger.Debug("Relay upgrade failed", zap.String("path", req.URL.Path), zap.Error(err))
		return
	}
	client := newLeg(SideClient, conn, rw.Reader)

	target := r.target(req)
	upConn, br, _, err := r.dialer.Dial(req.Context(), target)
	if err != nil {
		r.metrics.RelayRejected("dial_failed")
		r.logger.Warn("Relay could not reach browser",
			zap.String("target", target),
			zap.Error(&TransportError{Side: SideUpstream, Op: "dial", Err: err}),
		)
		_ = client.writeClose(websocket.CloseInternalServerErr,
			"upstream dial failed: "+err.Error(), time.Now().Add(r.cfg.CloseGrace))
		_ = conn.Close()
		return
	}
	var upReader io.Reader
	if br != nil {
		// The browser sent data right behind its handshake response.
		upReader = br
	}

	s := &session{
		id:       id.NewRelayID(),
		path:     req.URL.Path,
		remote:   req.RemoteAddr,
		started:  time.Now(),
		client:   client,
		upstream: newLeg(SideUpstream, upConn, upReader),
		logger:   r.logger,
		metrics:  r.metrics,
	}
	r.track(s)
	defer r.untrack(s)

	r.run(s)
}

// target is the upstream URL: same escaped path and raw query on loopback.
func (r *Relay) target(req *http.Request) string {
	u := fmt.Sprintf("ws://127.0.0.1:%d%s", r.ports.DebugPort(), req.URL.EscapedPath())
	if req.URL.RawQuery != "" {
		u += "?" + req.URL.RawQuery
	}
	return u
}

func (r *Relay) run(s *session) {
	results := make(chan pumpResult, 2)
	go func() { results <- s.pump(s.client, s.upstream, dirUpstream, &s.framesUp) }()
	go func() { results <- s.pump(s.upstream, s.client, dirClient, &s.framesDown) }()

	first := <-results
	deadline := time.Now().Add(r.cfg.CloseGrace)
	s.propagate(first, deadline)

	grace := time.NewTimer(r.cfg.CloseGrace)
	drained := false
	select {
	case second := <-results:
		drained = true
		if cleanClose(first) {
			// Complete the closing handshake for the side that started it.
			s.propagate(second, deadline)
		}
	case <-grace.C:
		r.logger.Debug("Relay close grace expired", zap.String("relay_id", s.id.String()))
	}
	grace.Stop()

	_ = s.client.conn.Close()
	_ = s.upstream.conn.Close()
	if !drained {
		<-results
	}

	result := outcome(first)
	r.metrics.RelayClosed(result)
	r.logger.Info("Relay session closed",
		zap.String("relay_id", s.id.String()),
		zap.String("path", s.path),
		zap.String("outcome", result),
		zap.Int64("frames_up", s.framesUp.Load()),
		zap.Int64("frames_down", s.framesDown.Load()),
		zap.Duration("duration", time.Since(s.started)),
		zap.NamedError("cause", first.err),
	)
}

func (r *Relay) track(s *session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.metrics.RelayOpened()
	r.logger.Info("Relay session opened",
		zap.String("relay_id", s.id.String()),
		zap.String("path", s.path),
		zap.String("remote", s.remote),
	)
}

func (r *Relay) untrack(s *session) {
	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()
}

// Active returns the number of live sessions.
func (r *Relay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll stops accepting sessions and sends a close frame with code and
// reason to both legs of every live session. Sessions then wind down through
// the normal close path.
func (r *Relay) CloseAll(code int, reason string) {
	r.mu.Lock()
	r.closing = true
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	deadline := time.Now().Add(r.cfg.CloseGrace)
	for _, s := range sessions {
		_ = s.client.writeClose(code, reason, deadline)
		_ = s.upstream.writeClose(code, reason, deadline)
	}
	if len(sessions) > 0 {
		r.logger.Info("Closing relay sessions", zap.Int("count", len(sessions)), zap.Int("code", code))
	}
}

// Wait blocks until every session has ended or ctx is done.
func (r *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
