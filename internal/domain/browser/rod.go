package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// eventBuffer smooths bursts of target events while the watcher is busy.
const eventBuffer = 256

// RodLauncher launches a local Chromium with go-rod.
type RodLauncher struct {
	logger *zap.Logger
}

// NewRodLauncher creates a launcher that logs process lifecycle to logger.
func NewRodLauncher(logger *zap.Logger) *RodLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodLauncher{logger: logger}
}

// Launch starts the process and connects to it. ctx bounds the launch only;
// the returned connection lives until Close.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Conn, error) {
	procCtx, cancel := context.WithCancel(context.Background())

	ln := launcher.New().
		Context(procCtx).
		Headless(opts.Headless).
		Leakless(opts.Leakless)

	bin := opts.Bin
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		}
	}
	if bin != "" {
		ln = ln.Bin(bin)
	}
	for _, f := range HardenedFlags(opts) {
		ln = ln.Set(flags.Flag(f.Name), f.Values...)
	}

	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := ln.Launch()
		done <- launched{url: u, err: err}
	}()

	var controlURL string
	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			killProcess(ln)
			return nil, fmt.Errorf("start process: %w", res.err)
		}
		controlURL = res.url
	case <-ctx.Done():
		cancel()
		go func() {
			<-done
			killProcess(ln)
		}()
		return nil, fmt.Errorf("start process: %w", ctx.Err())
	}

	b := rod.New().ControlURL(controlURL).NoDefaultDevice().Context(procCtx)
	if err := b.Connect(); err != nil {
		cancel()
		killProcess(ln)
		return nil, fmt.Errorf("connect: %w", err)
	}

	c := &rodConn{
		browser:    b,
		launcher:   ln,
		controlURL: controlURL,
		ctx:        procCtx,
		cancel:     cancel,
		events:     make(chan TargetEvent, eventBuffer),
		logger:     l.logger,
	}

	wait := b.EachEvent(
		func(e *proto.TargetTargetCreated) {
			c.emit(TargetCreated, e.TargetInfo)
		},
		func(e *proto.TargetTargetInfoChanged) {
			c.emit(TargetChanged, e.TargetInfo)
		},
		func(e *proto.TargetTargetDestroyed) {
			c.send(TargetEvent{Kind: TargetDestroyed, TargetID: string(e.TargetID)})
		},
	)
	go func() {
		wait()
		close(c.events)
	}()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		_ = c.Close(context.Background())
		return nil, fmt.Errorf("discover targets: %w", err)
	}

	l.logger.Info("Browser process started",
		zap.Int("pid", ln.PID()),
		zap.String("control_url", controlURL),
	)
	return c, nil
}

func killProcess(ln *launcher.Launcher) {
	if ln.PID() != 0 {
		ln.Kill()
	}
}

type rodConn struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
	ctx        context.Context
	cancel     context.CancelFunc
	events     chan TargetEvent
	logger     *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (c *rodConn) ControlURL() string         { return c.controlURL }
func (c *rodConn) PID() int                   { return c.launcher.PID() }
func (c *rodConn) Args() []string             { return c.launcher.FormatArgs() }
func (c *rodConn) Events() <-chan TargetEvent { return c.events }

func (c *rodConn) emit(kind TargetKind, info *proto.TargetTargetInfo) {
	if info == nil {
		return
	}
	c.send(targetEvent(kind, info))
}

func (c *rodConn) send(ev TargetEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func targetEvent(kind TargetKind, info *proto.TargetTargetInfo) TargetEvent {
	return TargetEvent{
		Kind:     kind,
		TargetID: string(info.TargetID),
		Type:     string(info.Type),
		URL:      info.URL,
		Title:    info.Title,
	}
}

func (c *rodConn) Targets(ctx context.Context) ([]TargetEvent, error) {
	res, err := proto.TargetGetTargets{}.Call(c.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	out := make([]TargetEvent, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if info == nil {
			continue
		}
		out = append(out, targetEvent(TargetCreated, info))
	}
	return out, nil
}

func (c *rodConn) ClosePage(ctx context.Context, targetID string) error {
	_, err := proto.TargetCloseTarget{TargetID: proto.TargetTargetID(targetID)}.Call(c.browser.Context(ctx))
	return err
}

func (c *rodConn) WatchPage(ctx context.Context, targetID string, network bool, fn func(PageEvent)) error {
	page, err := c.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return fmt.Errorf("attach page %s: %w", targetID, err)
	}
	page = page.Context(ctx)

	callbacks := []interface{}{
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			fn(PageEvent{Kind: PageNavigated, TargetID: targetID, URL: e.Frame.URL})
		},
		func(e *proto.PageLoadEventFired) {
			fn(PageEvent{Kind: PageLoaded, TargetID: targetID})
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			fn(PageEvent{
				Kind:     PageConsole,
				TargetID: targetID,
				Level:    string(e.Type),
				Text:     consoleText(e.Args),
			})
		},
		func(e *proto.RuntimeExceptionThrown) {
			ev := PageEvent{Kind: PageException, TargetID: targetID}
			if d := e.ExceptionDetails; d != nil {
				ev.URL = d.URL
				ev.Text = d.Text
				if d.Exception != nil && d.Exception.Description != "" {
					ev.Text = d.Exception.Description
				}
			}
			fn(ev)
		},
	}
	if network {
		callbacks = append(callbacks,
			func(e *proto.NetworkRequestWillBeSent) {
				ev := PageEvent{Kind: PageRequest, TargetID: targetID, RequestID: string(e.RequestID)}
				if e.Request != nil {
					ev.URL = e.Request.URL
					ev.Method = e.Request.Method
				}
				fn(ev)
			},
			func(e *proto.NetworkResponseReceived) {
				ev := PageEvent{Kind: PageResponse, TargetID: targetID, RequestID: string(e.RequestID)}
				if e.Response != nil {
					ev.URL = e.Response.URL
					ev.Status = e.Response.Status
				}
				fn(ev)
			},
			func(e *proto.NetworkLoadingFailed) {
				fn(PageEvent{
					Kind:      PageRequestFailed,
					TargetID:  targetID,
					RequestID: string(e.RequestID),
					Text:      e.ErrorText,
				})
			},
		)
	}

	page.EachEvent(callbacks...)()
	return nil
}

func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func (c *rodConn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.browser.Context(ctx).Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser close: %w", err))
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			killProcess(c.launcher)
			c.launcher.Cleanup()
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("process cleanup: %w", ctx.Err()))
		}

		c.closeErr = errors.Join(errs...)
		c.logger.Info("Browser process stopped", zap.Int("pid", c.launcher.PID()))
	})
	return c.closeErr
}
