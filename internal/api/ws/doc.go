// Package ws relays CDP WebSocket sessions from tunnel clients to the
// browser's loopback debug socket.
//
// Each accepted upgrade on /devtools/* is dialed through to the same path on
// 127.0.0.1 and bridged by two pumps, one per direction. The pumps work on
// frames, not messages: every header is written back as read, mask and
// FIN bit included, and the payload is streamed without decoding. Large
// frames stay whole, fragmented messages keep their fragments, and ping and
// pong frames are forwarded to the other peer rather than answered by the
// relay.
//
// Close frames are the exception. When either leg closes, its close code is
// forwarded once to the other leg; codes that cannot appear on the wire
// (1005, 1006, 1015) are rewritten first. The peer's reply is forwarded back
// the same way, which completes the closing handshake end to end.
package ws
