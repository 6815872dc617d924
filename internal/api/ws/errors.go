package ws

import "fmt"

// Relay legs.
const (
	SideClient   = "client"
	SideUpstream = "upstream"
)

// TransportError reports a failure on one leg of a relay session. It is
// handled by closing the other leg and is never returned past the relay.
type TransportError struct {
	Side string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relay %s %s: %v", e.Side, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func other(side string) string {
	if side == SideClient {
		return SideUpstream
	}
	return SideClient
}
