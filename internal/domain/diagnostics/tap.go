// Package diagnostics logs browser and page lifecycle events for operators.
//
// The tap is observation only. Failures to attach or crashes inside a
// subscription are contained here and never reach the supervisor or relay.
package diagnostics

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/domain/browser"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
)

// DefaultMaxText caps logged text payloads.
const DefaultMaxText = 512

// Config controls what the tap subscribes to.
type Config struct {
	Enabled    bool
	Network    bool
	MaxTextLen int
}

type watcher struct {
	cancel context.CancelFunc
}

// Tap implements browser.Observer.
type Tap struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	conn     browser.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	watchers map[string]*watcher

	wg sync.WaitGroup
}

// New creates a tap. A disabled tap ignores every callback.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Tap {
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = DefaultMaxText
	}
	return &Tap{
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		watchers: make(map[string]*watcher),
	}
}

// Attach binds the tap to a new browser connection, dropping any previous one.
func (t *Tap) Attach(conn browser.Conn) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.detachLocked()
	t.conn = conn
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.logger.Debug("Diagnostics attached", zap.String("control_url", conn.ControlURL()))
}

// Observe handles a browser-level target event.
func (t *Tap) Observe(ev browser.TargetEvent) {
	if !t.cfg.Enabled {
		return
	}
	defer t.contain("target", ev.TargetID)

	t.metrics.RecordDiagEvent("target", string(ev.Kind))
	fields := []zap.Field{
		zap.String("target_id", ev.TargetID),
		zap.String("type", ev.Type),
	}
	if ev.URL != "" {
		fields = append(fields, zap.String("url", logging.Truncate(ev.URL, t.cfg.MaxTextLen)))
	}

	switch ev.Kind {
	case browser.TargetCreated:
		t.logger.Info("Target created", fields...)
		if ev.IsPage() {
			t.watch(ev.TargetID)
		}
	case browser.TargetDestroyed:
		t.logger.Info("Target destroyed", fields...)
		t.unwatch(ev.TargetID)
	case browser.TargetChanged:
		t.logger.Debug("Target changed", fields...)
	}
}

// Detach cancels every page watcher and forgets the connection.
func (t *Tap) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked()
}

// Stop is Detach followed by waiting for watchers to exit.
func (t *Tap) Stop() {
	t.Detach()
	t.wg.Wait()
}

// Watching returns the number of attached page watchers.
func (t *Tap) Watching() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watchers)
}

func (t *Tap) detachLocked() {
	if t.cancel != nil {
		t.cancel()
	}
	n := len(t.watchers)
	t.watchers = make(map[string]*watcher)
	t.conn, t.ctx, t.cancel = nil, nil, nil
	if n > 0 {
		t.logger.Debug("Diagnostics detached", zap.Int("page_watchers", n))
	}
}

func (t *Tap) watch(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return
	}
	if _, ok := t.watchers[targetID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(t.ctx)
	w := &watcher{cancel: cancel}
	t.watchers[targetID] = w

	conn := t.conn
	t.wg.Add(1)
	go t.run(ctx, conn, targetID, w)
}

func (t *Tap) unwatch(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, ok := t.watchers[targetID]; ok {
		w.cancel()
		delete(t.watchers, targetID)
	}
}

func (t *Tap) run(ctx context.Context, conn browser.Conn, targetID string, w *watcher) {
	defer t.wg.Done()
	defer func() {
		w.cancel()
		t.mu.Lock()
		if t.watchers[targetID] == w {
			delete(t.watchers, targetID)
		}
		t.mu.Unlock()
	}()
	defer t.contain("page", targetID)

	err := conn.WatchPage(ctx, targetID, t.cfg.Network, t.logPage)
	if err != nil && ctx.Err() == nil {
		t.report(&AttachError{Stage: "page", TargetID: targetID, Err: err})
	}
}

// contain turns a panic into a logged AttachError. It must be deferred.
func (t *Tap) contain(stage, targetID string) {
	if r := recover(); r != nil {
		t.report(&AttachError{Stage: stage, TargetID: targetID, Err: fmt.Errorf("panic: %v", r)})
	}
}

func (t *Tap) report(err *AttachError) {
	t.metrics.RecordDiagError(err.Stage)
	t.logger.Warn("Diagnostics subscription failed", zap.Error(err))
}

func (t *Tap) logPage(ev browser.PageEvent) {
	t.metrics.RecordDiagEvent("page", string(ev.Kind))

	fields := []zap.Field{zap.String("target_id", ev.TargetID)}
	if ev.URL != "" {
		fields = append(fields, zap.String("url", logging.Truncate(ev.URL, t.cfg.MaxTextLen)))
	}
	text := logging.Truncate(ev.Text, t.cfg.MaxTextLen)

	switch ev.Kind {
	case browser.PageNavigated:
		t.logger.Info("Page navigated", fields...)
	case browser.PageLoaded:
		t.logger.Debug("Page loaded", fields...)
	case browser.PageConsole:
		t.logger.Info("Page console",
			append(fields, zap.String("level", ev.Level), zap.String("text", text))...)
	case browser.PageException:
		t.logger.Warn("Page exception", append(fields, zap.String("text", text))...)
	case browser.PageRequest:
		t.logger.Debug("Page request",
			append(fields, zap.String("method", ev.Method), zap.String("request_id", ev.RequestID))...)
	case browser.PageResponse:
		t.logger.Debug("Page response",
			append(fields, zap.Int("status", ev.Status), zap.String("request_id", ev.RequestID))...)
	case browser.PageRequestFailed:
		t.logger.Debug("Page request failed",
			append(fields, zap.String("error", text), zap.String("request_id", ev.RequestID))...)
	}
}
