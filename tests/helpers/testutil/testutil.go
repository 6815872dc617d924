// Package testutil provides fakes and mocks shared by the gateway's tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/cdpgate/internal/domain/browser"
)

// FakeConn is an in-memory browser.Conn.
type FakeConn struct {
	url string
	pid int

	emitMu       sync.Mutex
	events       chan browser.TargetEvent
	disconnected bool

	mu           sync.Mutex
	targets      []browser.TargetEvent
	closedPages  []string
	closeCalls   int
	closePageErr error
	watchErr     error
	watchPanic   bool
	watchers     map[string]func(browser.PageEvent)
	watchCalls   map[string]int
}

// NewFakeConn creates a connected fake with the given control URL.
func NewFakeConn(url string, pid int) *FakeConn {
	return &FakeConn{
		url:        url,
		pid:        pid,
		events:     make(chan browser.TargetEvent, 64),
		watchers:   make(map[string]func(browser.PageEvent)),
		watchCalls: make(map[string]int),
	}
}

func (c *FakeConn) ControlURL() string                 { return c.url }
func (c *FakeConn) PID() int                           { return c.pid }
func (c *FakeConn) Args() []string                     { return []string{"--headless"} }
func (c *FakeConn) Events() <-chan browser.TargetEvent { return c.events }

// Emit delivers a target event unless the connection is gone.
func (c *FakeConn) Emit(ev browser.TargetEvent) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.disconnected {
		return
	}
	c.events <- ev
}

// EmitPageCreated is Emit for a new page target.
func (c *FakeConn) EmitPageCreated(targetID string) {
	c.Emit(browser.TargetEvent{Kind: browser.TargetCreated, TargetID: targetID, Type: browser.TargetTypePage, URL: "about:blank"})
}

// EmitDestroyed is Emit for a destroyed target.
func (c *FakeConn) EmitDestroyed(targetID string) {
	c.Emit(browser.TargetEvent{Kind: browser.TargetDestroyed, TargetID: targetID})
}

// Disconnect simulates the browser going away.
func (c *FakeConn) Disconnect() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if !c.disconnected {
		c.disconnected = true
		close(c.events)
	}
}

// SetTargets sets what Targets returns.
func (c *FakeConn) SetTargets(targets ...browser.TargetEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = targets
}

// SetClosePageErr makes ClosePage fail.
func (c *FakeConn) SetClosePageErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closePageErr = err
}

// SetWatchErr makes WatchPage fail to attach.
func (c *FakeConn) SetWatchErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchErr = err
}

// SetWatchPanic makes WatchPage panic.
func (c *FakeConn) SetWatchPanic(panics bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchPanic = panics
}

func (c *FakeConn) Targets(ctx context.Context) ([]browser.TargetEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.TargetEvent(nil), c.targets...), nil
}

func (c *FakeConn) ClosePage(ctx context.Context, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closePageErr != nil {
		return c.closePageErr
	}
	c.closedPages = append(c.closedPages, targetID)
	return nil
}

// ClosedPages returns the targets ClosePage succeeded for.
func (c *FakeConn) ClosedPages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.closedPages...)
}

func (c *FakeConn) WatchPage(ctx context.Context, targetID string, network bool, fn func(browser.PageEvent)) error {
	c.mu.Lock()
	c.watchCalls[targetID]++
	if c.watchPanic {
		c.mu.Unlock()
		panic("watch page exploded")
	}
	if c.watchErr != nil {
		err := c.watchErr
		c.mu.Unlock()
		return err
	}
	c.watchers[targetID] = fn
	c.mu.Unlock()

	<-ctx.Done()

	c.mu.Lock()
	delete(c.watchers, targetID)
	c.mu.Unlock()
	return nil
}

// Watching reports whether a page watcher is attached to targetID.
func (c *FakeConn) Watching(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watchers[targetID]
	return ok
}

// WatchCalls counts WatchPage calls for targetID.
func (c *FakeConn) WatchCalls(targetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchCalls[targetID]
}

// EmitPage delivers a page event to the watcher of ev.TargetID. It reports
// false when nothing is watching.
func (c *FakeConn) EmitPage(ev browser.PageEvent) bool {
	c.mu.Lock()
	fn, ok := c.watchers[ev.TargetID]
	c.mu.Unlock()
	if ok {
		fn(ev)
	}
	return ok
}

func (c *FakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.Disconnect()
	return nil
}

// CloseCalls counts Close calls.
func (c *FakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// FakeLauncher hands out FakeConns.
type FakeLauncher struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	conns []*FakeConn
	opts  []browser.LaunchOptions
	seed  []browser.TargetEvent
}

// NewFakeLauncher creates a launcher that succeeds immediately.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{}
}

// SetDelay makes each launch take d.
func (l *FakeLauncher) SetDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

// SetInitialTargets sets the targets every new connection starts with.
func (l *FakeLauncher) SetInitialTargets(targets ...browser.TargetEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seed = targets
}

// SetErr makes subsequent launches fail with err; nil restores success.
func (l *FakeLauncher) SetErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *FakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Conn, error) {
	l.mu.Lock()
	delay, err, seed := l.delay, l.err, l.seed
	l.opts = append(l.opts, opts)
	n := len(l.opts)
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	conn := NewFakeConn(fmt.Sprintf("ws://127.0.0.1:%d/devtools/browser/fake-%d", opts.DebugPort, n), 1000+n)
	conn.SetTargets(seed...)
	l.mu.Lock()
	l.conns = append(l.conns, conn)
	l.mu.Unlock()
	return conn, nil
}

// Calls counts Launch calls, failed ones included.
func (l *FakeLauncher) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.opts)
}

// Conns returns the connections handed out so far.
func (l *FakeLauncher) Conns() []*FakeConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeConn(nil), l.conns...)
}

// Last returns the most recent connection, or nil.
func (l *FakeLauncher) Last() *FakeConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.conns) == 0 {
		return nil
	}
	return l.conns[len(l.conns)-1]
}

// MockProber is a testify mock of browser.Prober.
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Version(ctx context.Context) (*browser.VersionInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*browser.VersionInfo), args.Error(1)
}

func (m *MockProber) Targets(ctx context.Context) ([]browser.TargetEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.TargetEntry), args.Error(1)
}

// NewMockProber creates a prober that reports a healthy browser with no
// pages unless overridden.
func NewMockProber() *MockProber {
	m := new(MockProber)
	m.On("Version", mock.Anything).
		Return(&browser.VersionInfo{Browser: "HeadlessChrome/120.0.0.0"}, nil).
		Maybe()
	m.On("Targets", mock.Anything).
		Return([]browser.TargetEntry{}, nil).
		Maybe()
	return m
}
