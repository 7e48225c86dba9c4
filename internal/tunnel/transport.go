package tunnel

import (
	"context"
	"net"

	"golang.org/x/net/proxy"
)

// Transport is the seam between the relay and the operating system's sockets.
// Listeners are bound and destinations dialed only through it.
type Transport interface {
	proxy.ContextDialer

	// Listen binds a TCP listener on address with address reuse enabled.
	Listen(ctx context.Context, address string) (net.Listener, error)
}

// NetTransport is the Transport backed by the host network stack.
type NetTransport struct {
	// Dialer is used for destinations. Nil means proxy.Direct.
	Dialer proxy.ContextDialer
}

// DialContext resolves and connects to address.
func (t NetTransport) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d := t.Dialer
	if d == nil {
		d = proxy.Direct
	}
	return d.DialContext(ctx, network, address)
}

// Listen binds address with SO_REUSEADDR so a restarted relay can rebind
// ports that still have connections in TIME_WAIT.
func (t NetTransport) Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	return lc.Listen(ctx, "tcp", address)
}
