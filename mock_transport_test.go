package mqttclient

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// mockTransport is an in-memory Transport. Tests feed server packets with
// send and read client packets from written.
type mockTransport struct {
	in      chan Packet
	written chan Packet

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	writeErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		in:      make(chan Packet, 64),
		written: make(chan Packet, 1024),
		closed:  make(chan struct{}),
	}
}

func (m *mockTransport) ReadPacket() (Packet, error) {
	select {
	case pkt := <-m.in:
		return pkt, nil
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *mockTransport) WritePacket(pkt Packet) error {
	m.mu.Lock()
	err := m.writeErr
	m.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-m.closed:
		return net.ErrClosed
	default:
	}

	m.written <- pkt
	return nil
}

func (m *mockTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockTransport) failWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *mockTransport) send(pkt Packet) {
	m.in <- pkt
}

func (m *mockTransport) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// next returns the next packet written by the client, skipping PINGREQ.
func (m *mockTransport) next(t *testing.T) Packet {
	t.Helper()

	deadline := time.After(testTimeout)
	for {
		select {
		case pkt := <-m.written:
			if _, ok := pkt.(*PingreqPacket); ok {
				continue
			}
			return pkt
		case <-deadline:
			t.Fatal("timed out waiting for a client packet")
			return nil
		}
	}
}

// quiet asserts that the client writes nothing but PINGREQ for d.
func (m *mockTransport) quiet(t *testing.T, d time.Duration) {
	t.Helper()

	deadline := time.After(d)
	for {
		select {
		case pkt := <-m.written:
			if _, ok := pkt.(*PingreqPacket); ok {
				continue
			}
			t.Fatalf("unexpected %s written", pkt.Type())
		case <-deadline:
			return
		}
	}
}

func expectPacket[T Packet](t *testing.T, m *mockTransport) T {
	t.Helper()

	pkt := m.next(t)
	typed, ok := pkt.(T)
	require.Truef(t, ok, "expected %T, got %s", *new(T), pkt.Type())
	return typed
}

// mockDialer hands out a fresh mockTransport per Dial.
type mockDialer struct {
	transports chan *mockTransport
	dials      atomic.Int32

	mu  sync.Mutex
	err error
}

func newMockDialer() *mockDialer {
	return &mockDialer{transports: make(chan *mockTransport, 16)}
}

func (d *mockDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.dials.Add(1)

	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tr := newMockTransport()
	d.transports <- tr
	return tr, nil
}

func (d *mockDialer) failDials(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *mockDialer) next(t *testing.T) *mockTransport {
	t.Helper()

	select {
	case tr := <-d.transports:
		return tr
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// ackRecorder collects AckFunc calls.
type ackRecorder struct {
	ch    chan error
	calls atomic.Int32
}

func newAckRecorder() *ackRecorder {
	return &ackRecorder{ch: make(chan error, 8)}
}

func (a *ackRecorder) fn(err error) {
	a.calls.Add(1)
	a.ch <- err
}

func (a *ackRecorder) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-a.ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for ack")
		return nil
	}
}

func (a *ackRecorder) pending(t *testing.T, d time.Duration) {
	t.Helper()

	select {
	case err := <-a.ch:
		t.Fatalf("ack resolved early: %v", err)
	case <-time.After(d):
	}
}

// eventRecorder collects lifecycle events.
type eventRecorder struct {
	ch chan error
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan error, 64)}
}

func (r *eventRecorder) option() Option {
	return OnEvent(func(_ *Client, event error) {
		r.ch <- event
	})
}

// waitFor returns the first event matching target, dropping others.
func (r *eventRecorder) waitFor(t *testing.T, target error) error {
	t.Helper()

	deadline := time.After(testTimeout)
	for {
		select {
		case ev := <-r.ch:
			if errors.Is(ev, target) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %v", target)
			return nil
		}
	}
}

// newTestClient creates a client wired to a mock dialer, with keep-alive
// disabled so no PINGREQ interferes.
func newTestClient(t *testing.T, opts ...Option) (*Client, *mockDialer) {
	t.Helper()

	d := newMockDialer()
	base := []Option{
		WithClientID("test-client"),
		WithDialer(d),
		WithKeepAlive(0),
		WithConnectTimeout(testTimeout),
	}
	c := New(append(base, opts...)...)
	t.Cleanup(func() { _ = c.DisconnectAndClose() })
	return c, d
}

// connectClient completes CONNECT/CONNACK on a fresh transport.
func connectClient(t *testing.T, c *Client, d *mockDialer, connack *ConnackPacket) *mockTransport {
	t.Helper()

	result := make(chan error, 1)
	c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
		result <- err
	})

	tr := d.next(t)
	expectPacket[*ConnectPacket](t, tr)
	tr.send(connack)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for CONNACK")
	}
	return tr
}

// reconnectClient completes a Reconnect on a fresh transport.
func reconnectClient(t *testing.T, c *Client, d *mockDialer, connack *ConnackPacket) *mockTransport {
	t.Helper()

	waitForState(t, c, StateDisconnected)

	result := make(chan error, 1)
	c.Reconnect(context.Background(), func(_ *ConnectResult, err error) {
		result <- err
	})

	tr := d.next(t)
	expectPacket[*ConnectPacket](t, tr)
	tr.send(connack)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for CONNACK")
	}
	return tr
}

func waitForState(t *testing.T, c *Client, state State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == state },
		testTimeout, 5*time.Millisecond, "state %s, want %s", c.State(), state)
}

// dropConnection simulates the broker going away and waits until the client
// settled the loss.
func dropConnection(t *testing.T, c *Client, tr *mockTransport) {
	t.Helper()
	require.NoError(t, tr.Close())
	waitForState(t, c, StateDisconnected)
}
