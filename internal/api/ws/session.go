package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	gws "github.com/gobwas/ws"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/cdpgate/internal/shared/id"
)

const (
	dirUpstream = "client_to_upstream"
	dirClient   = "upstream_to_client"
)

// closeLost replaces close codes that may not be sent on the wire.
const closeLost = "peer connection lost"

// maxCloseReason is the largest reason that fits a close frame.
const maxCloseReason = 123

// copyBufferSize is the per-direction payload copy buffer.
const copyBufferSize = 32 << 10

var (
	errControlTooLarge = errors.New("control frame payload exceeds 125 bytes")
	errWriteBusy       = errors.New("write lock not acquired before deadline")
)

// leg is one side of a session. Reads go through r so bytes buffered
// during the handshake are not lost. Writes are serialized by wmu, a
// one-slot semaphore so control writes can give up at a deadline.
type leg struct {
	side string
	conn net.Conn
	r    io.Reader
	// mask is set on the upstream leg, where the relay acts as the client.
	mask bool
	wmu  chan struct{}

	// closeSent is guarded by wmu.
	closeSent bool
}

func newLeg(side string, conn net.Conn, r io.Reader) *leg {
	if r == nil {
		r = conn
	}
	return &leg{
		side: side,
		conn: conn,
		r:    r,
		mask: side == SideUpstream,
		wmu:  make(chan struct{}, 1),
	}
}

func (l *leg) lock(deadline time.Time) bool {
	if deadline.IsZero() {
		l.wmu <- struct{}{}
		return true
	}
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case l.wmu <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (l *leg) unlock() { <-l.wmu }

// writeClose sends a close frame unless one was already sent on this leg.
// Code 1005 is sent as an empty close payload.
func (l *leg) writeClose(code int, reason string, deadline time.Time) error {
	if !l.lock(deadline) {
		return errWriteBusy
	}
	defer l.unlock()
	if l.closeSent {
		return nil
	}
	l.closeSent = true

	var body []byte
	if code != websocket.CloseNoStatusReceived {
		body = gws.NewCloseFrameBody(gws.StatusCode(code), truncateReason(reason))
	}
	f := gws.NewCloseFrame(body)
	if l.mask {
		f = gws.MaskFrameInPlace(f)
	}
	_ = l.conn.SetWriteDeadline(deadline)
	defer func() { _ = l.conn.SetWriteDeadline(time.Time{}) }()
	return gws.WriteFrame(l.conn, f)
}

// session is one bridged client/upstream pair.
type session struct {
	id       id.RelayID
	path     string
	remote   string
	started  time.Time
	client   *leg
	upstream *leg

	framesUp   atomic.Int64
	framesDown atomic.Int64

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

type pumpResult struct {
	// side is the leg that failed.
	side string
	err  error
}

func (s *session) leg(side string) *leg {
	if side == SideClient {
		return s.client
	}
	return s.upstream
}

// pump copies frames from src to dst until either fails or src sends a
// close frame. Headers are written back unchanged, mask included, and
// payloads are streamed without decoding, so fragmentation, opcodes and
// ping/pong frames reach the other side as sent. Close frames are not
// copied; the caller answers them through propagate.
func (s *session) pump(src, dst *leg, dir string, frames *atomic.Int64) pumpResult {
	buf := make([]byte, copyBufferSize)
	for {
		h, err := gws.ReadHeader(src.r)
		if err != nil {
			return readFailed(src, err)
		}
		if h.OpCode == gws.OpClose {
			return closeReceived(src, h)
		}
		if res, ok := forward(src, dst, h, buf); !ok {
			return res
		}
		frames.Add(1)
		s.metrics.RecordFrame(dir, frameType(h.OpCode), h.Length)
	}
}

// forward writes h and its payload to dst. Once a close has been sent on
// dst the payload is read and dropped.
func forward(src, dst *leg, h gws.Header, buf []byte) (pumpResult, bool) {
	dst.lock(time.Time{})
	defer dst.unlock()

	payload := io.LimitReader(src.r, h.Length)
	if dst.closeSent {
		if _, err := io.CopyBuffer(io.Discard, payload, buf); err != nil {
			return readFailed(src, err), false
		}
		return pumpResult{}, true
	}

	if err := gws.WriteHeader(dst.conn, h); err != nil {
		return pumpResult{side: dst.side, err: &TransportError{Side: dst.side, Op: "write", Err: err}}, false
	}
	w := &trackedWriter{w: dst.conn}
	n, err := io.CopyBuffer(w, payload, buf)
	switch {
	case w.err != nil:
		return pumpResult{side: dst.side, err: &TransportError{Side: dst.side, Op: "write", Err: w.err}}, false
	case err != nil:
		return readFailed(src, err), false
	case n < h.Length:
		return readFailed(src, io.ErrUnexpectedEOF), false
	}
	return pumpResult{}, true
}

// trackedWriter remembers write errors so a failed copy can be blamed on
// the right leg.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// readFailed classifies a read error on src. A stream that ends without a
// close frame is an abnormal closure (1006).
func readFailed(src *leg, err error) pumpResult {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return pumpResult{side: src.side, err: &websocket.CloseError{
			Code: websocket.CloseAbnormalClosure,
			Text: io.ErrUnexpectedEOF.Error(),
		}}
	}
	return pumpResult{side: src.side, err: &TransportError{Side: src.side, Op: "read", Err: err}}
}

func closeReceived(src *leg, h gws.Header) pumpResult {
	if h.Length > gws.MaxControlFramePayloadSize {
		return pumpResult{side: src.side, err: &TransportError{Side: src.side, Op: "read", Err: errControlTooLarge}}
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(src.r, payload); err != nil {
		return readFailed(src, err)
	}
	if h.Masked {
		gws.Cipher(payload, h.Mask, 0)
	}

	code, reason := gws.ParseCloseFrameData(payload)
	if code.Empty() {
		code = gws.StatusNoStatusRcvd
	}
	return pumpResult{side: src.side, err: &websocket.CloseError{Code: int(code), Text: reason}}
}

// propagate tells the other leg why res.side went away.
func (s *session) propagate(res pumpResult, deadline time.Time) {
	code, reason := closeFor(res.err)
	target := other(res.side)

	if err := s.leg(target).writeClose(code, reason, deadline); err != nil {
		s.logger.Debug("Close propagation failed",
			zap.String("relay_id", s.id.String()),
			zap.String("side", target),
			zap.Error(err),
		)
	}
}

// closeFor maps the error that ended one leg to the close frame sent on the
// other. Codes that are not allowed on the wire are replaced.
func closeFor(err error) (int, string) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return websocket.CloseGoingAway, closeLost
	}
	switch ce.Code {
	case websocket.CloseNoStatusReceived:
		return websocket.CloseNoStatusReceived, ""
	case websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return websocket.CloseGoingAway, closeLost
	}
	return ce.Code, truncateReason(ce.Text)
}

// cleanClose reports whether res ended with a close frame, meaning its
// sender is still reading and waits for the reply.
func cleanClose(res pumpResult) bool {
	var ce *websocket.CloseError
	return errors.As(res.err, &ce) && ce.Code != websocket.CloseAbnormalClosure
}

func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	return s[:maxCloseReason]
}

func outcome(res pumpResult) string {
	if cleanClose(res) {
		return res.side + "_closed"
	}
	return res.side + "_error"
}

func frameType(op gws.OpCode) string {
	switch op {
	case gws.OpText:
		return "text"
	case gws.OpBinary:
		return "binary"
	case gws.OpContinuation:
		return "continuation"
	case gws.OpPing:
		return "ping"
	case gws.OpPong:
		return "pong"
	default:
		return fmt.Sprintf("op_%d", op)
	}
}
