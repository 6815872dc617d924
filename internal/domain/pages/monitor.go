// Package pages enforces a hard maximum age on browser pages.
//
// Every page the browser reports is tracked from the moment it is first seen.
// When it reaches the configured age the monitor asks the browser to close it.
// The deadline is wall-clock from creation and is never extended by activity.
package pages

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
)

// DefaultCloseTimeout bounds a single close request.
const DefaultCloseTimeout = 5 * time.Second

// Closer closes one page.
type Closer func(ctx context.Context) error

// record is one tracked page. A record is replaced, never mutated, when its
// timer is rescheduled.
type record struct {
	id      string
	created time.Time
	timer   Timer
	closer  Closer
}

// Monitor tracks open pages and closes them when they exceed MaxAge.
type Monitor struct {
	maxAge       time.Duration
	closeTimeout time.Duration
	sched        Scheduler
	logger       *zap.Logger
	metrics      *monitoring.Metrics

	mu    sync.Mutex
	pages map[string]*record
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithScheduler replaces the real-time scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Monitor) { m.sched = s }
}

// WithCloseTimeout overrides DefaultCloseTimeout.
func WithCloseTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.closeTimeout = d }
}

// WithMetrics records tracked and reaped pages.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// NewMonitor creates a monitor enforcing maxAge.
func NewMonitor(maxAge time.Duration, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		maxAge:       maxAge,
		closeTimeout: DefaultCloseTimeout,
		sched:        RealScheduler{},
		logger:       logger,
		pages:        make(map[string]*record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxAge returns the enforced page lifetime.
func (m *Monitor) MaxAge() time.Duration {
	return m.maxAge
}

// Track starts the lifetime clock for a page. Tracking a page that is already
// known cancels its timer and schedules a new one for whatever remains of the
// original lifetime; the deadline never moves later.
func (m *Monitor) Track(id string, closer Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.sched.Now()
	created := now
	if prev, ok := m.pages[id]; ok {
		prev.timer.Stop()
		created = prev.created
		if closer == nil {
			closer = prev.closer
		}
	}

	remaining := m.maxAge - now.Sub(created)
	if remaining < 0 {
		remaining = 0
	}

	rec := &record{id: id, created: created, closer: closer}
	rec.timer = m.sched.AfterFunc(remaining, func() { m.expire(rec) })
	m.pages[id] = rec

	m.metrics.SetPagesTracked(len(m.pages))
	m.logger.Debug("Tracking page",
		zap.String("target_id", id),
		zap.Duration("remaining", remaining),
	)
}

// Untrack cancels the timer for a page that closed on its own.
func (m *Monitor) Untrack(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.pages[id]
	if !ok {
		return false
	}
	rec.timer.Stop()
	delete(m.pages, id)

	m.metrics.SetPagesTracked(len(m.pages))
	m.logger.Debug("Untracked page", zap.String("target_id", id))
	return true
}

// Reset cancels every timer and forgets every page.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pages)
	for id, rec := range m.pages {
		rec.timer.Stop()
		delete(m.pages, id)
	}

	m.metrics.SetPagesTracked(0)
	if n > 0 {
		m.logger.Debug("Cleared page timers", zap.Int("count", n))
	}
}

// Count returns the number of tracked pages.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// Tracked reports whether id is tracked.
func (m *Monitor) Tracked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pages[id]
	return ok
}

func (m *Monitor) expire(rec *record) {
	m.mu.Lock()
	if cur, ok := m.pages[rec.id]; !ok || cur != rec {
		// Untracked, reset or rescheduled since this timer was armed.
		m.mu.Unlock()
		return
	}
	delete(m.pages, rec.id)
	m.metrics.SetPagesTracked(len(m.pages))
	m.mu.Unlock()

	m.logger.Info("Closing page past max age",
		zap.String("target_id", rec.id),
		zap.Duration("max_age", m.maxAge),
	)
	m.metrics.IncPagesReaped()

	if rec.closer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
	defer cancel()

	if err := rec.closer(ctx); err != nil {
		m.metrics.IncPageCloseErrors()
		m.logger.Debug("Page close failed",
			zap.Error(&CloseError{TargetID: rec.id, Err: err}),
		)
	}
}
