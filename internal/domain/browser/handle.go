package browser

import (
	"sync/atomic"
	"time"
)

// Handle is the live browser. A relaunch always produces a new Handle with a
// higher Generation.
type Handle struct {
	ControlURL string
	DebugPort  int
	PID        int
	Args       []string
	LaunchedAt time.Time
	Generation uint64

	conn      Conn
	connected atomic.Bool
}

func newHandle(conn Conn, port int, generation uint64) *Handle {
	h := &Handle{
		ControlURL: conn.ControlURL(),
		DebugPort:  port,
		PID:        conn.PID(),
		Args:       conn.Args(),
		LaunchedAt: time.Now(),
		Generation: generation,
		conn:       conn,
	}
	h.connected.Store(true)
	return h
}

// Connected reports whether the CDP connection is still up.
func (h *Handle) Connected() bool {
	return h != nil && h.connected.Load()
}

// Uptime is the time since launch.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.LaunchedAt)
}
