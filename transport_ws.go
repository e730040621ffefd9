package mqttclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the MQTT WebSocket subprotocol.
const WebSocketSubprotocol = "mqtt"

var errTextFrame = errors.New("websocket: MQTT requires binary frames")

// WSConn adapts a WebSocket connection to net.Conn. Each Write is sent as
// one binary message; reads stream across message boundaries.
type WSConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	buf    []byte
}

func newWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Read reads data from the current message, fetching the next when empty.
func (c *WSConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.buf) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			return 0, errTextFrame
		}
		c.buf = data
	}

	n := copy(b, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Write writes b as a binary message.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *WSConn) Close() error         { return c.conn.Close() }
func (c *WSConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *WSConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *WSConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// WSDialer connects to brokers over WebSocket.
type WSDialer struct {
	Dialer *websocket.Dialer
	// Header is sent with the handshake request.
	Header http.Header
}

// NewWSDialer creates a WebSocket dialer negotiating the "mqtt" subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:     []string{WebSocketSubprotocol},
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// DialConn performs the handshake and returns the connection as net.Conn.
func (d *WSDialer) DialConn(ctx context.Context, address string) (net.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := d.Header
	if header == nil {
		header = http.Header{}
	}

	conn, resp, err := dialer.DialContext(ctx, address, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

// Dial implements Dialer for ws:// addresses.
func (d *WSDialer) Dial(ctx context.Context, address string) (Transport, error) {
	conn, err := d.DialConn(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewPahoTransport(conn), nil
}

// withNetDial returns a copy of d that opens its TCP connection with dial.
func (d *WSDialer) withNetDial(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *WSDialer {
	base := websocket.DefaultDialer
	if d.Dialer != nil {
		base = d.Dialer
	}
	dialer := *base
	dialer.NetDialContext = dial
	return &WSDialer{Dialer: &dialer, Header: d.Header}
}
