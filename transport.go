package mqttclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Transport carries decoded packets over one connection. ReadPacket is only
// called from the client's reader goroutine; WritePacket calls are
// serialized by the client.
type Transport interface {
	ReadPacket() (Packet, error)
	WritePacket(pkt Packet) error
	Close() error
}

// Dialer establishes transports.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}

// Default ports per scheme.
const (
	DefaultTCPPort = "1883"
	DefaultWSPort  = "80"
)

// NetDialer dials brokers over TCP, WebSocket or Unix sockets and frames
// packets with PahoTransport.
//
// Addresses are URLs: tcp://host:port, mqtt://host:port, ws://host:port/path
// or unix:///path/to.sock. A bare host or host:port means TCP.
type NetDialer struct {
	// Timeout bounds establishing the connection. Zero means only ctx.
	Timeout time.Duration

	// Proxy routes TCP and WebSocket connections through a proxy.
	Proxy *ProxyDialer

	// WebSocket configures ws:// connections. Nil uses NewWSDialer().
	WebSocket *WSDialer
}

// Dial connects to address.
func (d *NetDialer) Dial(ctx context.Context, address string) (Transport, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	target, err := ParseBrokerAddress(address)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	switch target.Scheme {
	case "tcp", "mqtt":
		conn, err = d.dialContext(ctx, "tcp", target.Host)
	case "unix":
		var nd net.Dialer
		conn, err = nd.DialContext(ctx, "unix", target.Path)
	case "ws":
		ws := d.WebSocket
		if ws == nil {
			ws = NewWSDialer()
		}
		if d.Proxy != nil {
			ws = ws.withNetDial(d.Proxy.DialContext)
		}
		conn, err = ws.DialConn(ctx, target.String())
	default:
		return nil, fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return NewPahoTransport(conn), nil
}

func (d *NetDialer) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.Proxy != nil {
		return d.Proxy.DialContext(ctx, network, addr)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, addr)
}

// ParseBrokerAddress normalizes a broker address into a URL with an
// explicit scheme and port.
func ParseBrokerAddress(address string) (*url.URL, error) {
	if address == "" {
		return nil, fmt.Errorf("empty broker address")
	}
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid broker address: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "tcp", "mqtt":
		u.Host = withDefaultPort(u.Host, DefaultTCPPort)
	case "ws":
		u.Host = withDefaultPort(u.Host, DefaultWSPort)
	case "unix":
		if u.Path == "" {
			return nil, fmt.Errorf("unix address without socket path")
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("broker address %q has no host", address)
	}
	return u, nil
}

func withDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}
