package browser

import (
	"context"
	"time"
)

// LaunchOptions describes one browser process.
type LaunchOptions struct {
	Bin       string
	DebugPort int
	Headless  bool
	Leakless  bool
	MaxHeapMB int
	Timeout   time.Duration
}

// Launcher starts a browser and returns a live connection to it.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Conn, error)
}

// Conn is a CDP connection to a launched browser.
type Conn interface {
	// ControlURL is the browser's loopback control endpoint.
	ControlURL() string
	// PID of the browser process, or 0 when unknown.
	PID() int
	// Args are the command-line flags the browser was started with.
	Args() []string
	// Events delivers target notifications in browser order. The channel is
	// closed when the connection is lost or closed.
	Events() <-chan TargetEvent
	// Targets lists the targets currently open.
	Targets(ctx context.Context) ([]TargetEvent, error)
	// ClosePage asks the browser to close one target.
	ClosePage(ctx context.Context, targetID string) error
	// WatchPage delivers page events for one target to fn until ctx is done.
	WatchPage(ctx context.Context, targetID string, network bool, fn func(PageEvent)) error
	// Close closes the browser, kills the process and removes its profile.
	Close(ctx context.Context) error
}

// Observer receives browser lifecycle callbacks from the supervisor.
type Observer interface {
	Attach(conn Conn)
	Observe(ev TargetEvent)
	Detach()
}
