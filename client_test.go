package mqttclient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("generates client id", func(t *testing.T) {
		c := New()
		defer c.DisconnectAndClose()

		assert.True(t, strings.HasPrefix(c.ClientID(), "mqttc-"))
		assert.Equal(t, StateDisconnected, c.State())
		assert.False(t, c.IsConnected())
	})

	t.Run("client ids are unique", func(t *testing.T) {
		a, b := New(), New()
		defer a.DisconnectAndClose()
		defer b.DisconnectAndClose()

		assert.NotEqual(t, a.ClientID(), b.ClientID())
	})

	t.Run("keeps configured client id", func(t *testing.T) {
		c := New(WithClientID("sensor-gw"))
		defer c.DisconnectAndClose()

		assert.Equal(t, "sensor-gw", c.ClientID())
	})
}

func TestConnect(t *testing.T) {
	t.Run("sends CONNECT and reports CONNACK", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t,
			WithCredentials("user", "secret"),
			WithWill("status/test-client", []byte("offline"), true, QoS1),
			events.option(),
		)

		result := make(chan *ConnectResult, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(r *ConnectResult, err error) {
			assert.NoError(t, err)
			result <- r
		})

		tr := d.next(t)
		connect := expectPacket[*ConnectPacket](t, tr)
		assert.Equal(t, "test-client", connect.ClientID)
		assert.Equal(t, ProtocolMQTT311, connect.ProtocolVersion)
		assert.True(t, connect.CleanSession)
		assert.Equal(t, "user", connect.Username)
		assert.Equal(t, []byte("secret"), connect.Password)
		assert.True(t, connect.WillFlag)
		assert.Equal(t, "status/test-client", connect.WillTopic)
		assert.Equal(t, QoS1, connect.WillQoS)
		assert.True(t, connect.WillRetain)

		tr.send(&ConnackPacket{SessionPresent: true})

		select {
		case r := <-result:
			require.NotNil(t, r)
			assert.True(t, r.SessionPresent)
			assert.False(t, r.Reconnect)
		case <-time.After(testTimeout):
			t.Fatal("no connect result")
		}

		assert.True(t, c.IsConnected())

		var ce *ConnectedEvent
		require.ErrorAs(t, events.waitFor(t, ErrConnected), &ce)
		assert.True(t, ce.SessionPresent)
		assert.False(t, ce.Reconnect)
	})

	t.Run("refused", func(t *testing.T) {
		c, d := newTestClient(t, WithAutoReconnect(true), WithReconnectBackoff(10*time.Millisecond))

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(r *ConnectResult, err error) {
			assert.Nil(t, r)
			result <- err
		})

		tr := d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		tr.send(&ConnackPacket{ReasonCode: ReasonNotAuthorized})

		err := <-result
		assert.ErrorIs(t, err, ErrConnectRefused)
		assert.ErrorIs(t, err, ErrAuthFailed)

		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ReasonNotAuthorized, ce.ReasonCode)

		waitForState(t, c, StateDisconnected)

		// A refusal never triggers automatic reconnection.
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(1), d.dials.Load())
	})

	t.Run("dial failure", func(t *testing.T) {
		c, d := newTestClient(t)
		boom := errors.New("boom")
		d.failDials(boom)

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})

		err := <-result
		assert.ErrorIs(t, err, ErrConnectFailed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("transport closed before CONNACK", func(t *testing.T) {
		c, d := newTestClient(t)

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})

		tr := d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		require.NoError(t, tr.Close())

		assert.ErrorIs(t, <-result, ErrConnectFailed)
		waitForState(t, c, StateDisconnected)
	})

	t.Run("packet before CONNACK is a protocol error", func(t *testing.T) {
		c, d := newTestClient(t)

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})

		tr := d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		tr.send(&PublishPacket{Topic: "a", Payload: []byte("x")})

		assert.ErrorIs(t, <-result, ErrProtocolError)
		waitForState(t, c, StateDisconnected)
	})

	t.Run("timeout waiting for CONNACK", func(t *testing.T) {
		c, d := newTestClient(t, WithConnectTimeout(50*time.Millisecond))

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})

		tr := d.next(t)
		expectPacket[*ConnectPacket](t, tr)

		assert.ErrorIs(t, <-result, ErrConnectTimeout)
		waitForState(t, c, StateDisconnected)
		assert.True(t, tr.isClosed())
	})

	t.Run("CONNACK racing cancellation settles one way", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			tr := newMockTransport()
			tr.send(&ConnackPacket{})
			c := New(
				WithClientID("race"),
				WithKeepAlive(0),
				WithDialer(DialerFunc(func(context.Context, string) (Transport, error) { return tr, nil })),
			)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			result := make(chan error, 1)
			c.Connect(ctx, "tcp://broker:1883", func(_ *ConnectResult, err error) {
				result <- err
			})

			var err error
			select {
			case err = <-result:
			case <-time.After(testTimeout):
				t.Fatal("no connect result")
			}

			if err == nil {
				assert.True(t, c.IsConnected())
				assert.False(t, tr.isClosed())
			} else {
				assert.ErrorIs(t, err, context.Canceled)
				waitForState(t, c, StateDisconnected)
				assert.True(t, tr.isClosed())
			}
			_ = c.DisconnectAndClose()
		}
	})

	t.Run("already connected", func(t *testing.T) {
		c, d := newTestClient(t)
		connectClient(t, c, d, &ConnackPacket{})

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})
		assert.ErrorIs(t, <-result, ErrAlreadyConnected)
	})

	t.Run("duplicate CONNACK drops the connection", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option())
		tr := connectClient(t, c, d, &ConnackPacket{})

		tr.send(&ConnackPacket{})

		ev := events.waitFor(t, ErrConnectionLost)
		assert.ErrorIs(t, ev, ErrProtocolError)
		waitForState(t, c, StateDisconnected)
	})
}

func TestDialContext(t *testing.T) {
	t.Run("returns connected client", func(t *testing.T) {
		d := newMockDialer()
		go func() {
			tr := <-d.transports
			<-tr.written
			tr.send(&ConnackPacket{})
		}()

		c, err := DialContext(context.Background(), "tcp://broker:1883", WithDialer(d), WithKeepAlive(0))
		require.NoError(t, err)
		defer c.DisconnectAndClose()

		assert.True(t, c.IsConnected())
	})

	t.Run("returns refusal", func(t *testing.T) {
		d := newMockDialer()
		go func() {
			tr := <-d.transports
			<-tr.written
			tr.send(&ConnackPacket{ReasonCode: ReasonServerUnavailable})
		}()

		c, err := DialContext(context.Background(), "tcp://broker:1883", WithDialer(d), WithKeepAlive(0))
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrConnectRefused)
		assert.NotErrorIs(t, err, ErrAuthFailed)
	})

	t.Run("context cancelled", func(t *testing.T) {
		d := newMockDialer()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		c, err := DialContext(ctx, "tcp://broker:1883", WithDialer(d), WithKeepAlive(0))
		assert.Nil(t, c)
		assert.Error(t, err)
	})
}

func TestReconnect(t *testing.T) {
	t.Run("without previous connect", func(t *testing.T) {
		c, _ := newTestClient(t)

		result := make(chan error, 1)
		c.Reconnect(context.Background(), func(_ *ConnectResult, err error) {
			result <- err
		})
		assert.ErrorIs(t, <-result, ErrNoPreviousConnect)
	})

	t.Run("while connected", func(t *testing.T) {
		c, d := newTestClient(t)
		connectClient(t, c, d, &ConnackPacket{})

		result := make(chan error, 1)
		c.Reconnect(context.Background(), func(_ *ConnectResult, err error) {
			result <- err
		})
		assert.ErrorIs(t, <-result, ErrAlreadyConnected)
	})

	t.Run("reports reconnect in result", func(t *testing.T) {
		c, d := newTestClient(t)
		tr := connectClient(t, c, d, &ConnackPacket{})
		dropConnection(t, c, tr)

		result := make(chan *ConnectResult, 1)
		c.Reconnect(context.Background(), func(r *ConnectResult, err error) {
			assert.NoError(t, err)
			result <- r
		})

		tr = d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		tr.send(&ConnackPacket{})

		r := <-result
		require.NotNil(t, r)
		assert.True(t, r.Reconnect)
		assert.True(t, c.IsConnected())
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("sends DISCONNECT", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option())
		tr := connectClient(t, c, d, &ConnackPacket{})

		require.NoError(t, c.Disconnect())
		expectPacket[*DisconnectPacket](t, tr)
		assert.True(t, tr.isClosed())

		var de *DisconnectError
		require.ErrorAs(t, events.waitFor(t, ErrDisconnected), &de)
		assert.False(t, de.Remote)

		waitForState(t, c, StateDisconnected)
		assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
	})

	t.Run("not connected", func(t *testing.T) {
		c, _ := newTestClient(t)
		assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
	})

	t.Run("no automatic reconnect after Disconnect", func(t *testing.T) {
		c, d := newTestClient(t, WithAutoReconnect(true), WithReconnectBackoff(10*time.Millisecond))
		connectClient(t, c, d, &ConnackPacket{})

		require.NoError(t, c.Disconnect())
		time.Sleep(100 * time.Millisecond)

		assert.Equal(t, int32(1), d.dials.Load())
		assert.Equal(t, StateDisconnected, c.State())
	})
}

func TestDisconnectAndClose(t *testing.T) {
	t.Run("fails every pending operation", func(t *testing.T) {
		c, d := newTestClient(t)
		tr := connectClient(t, c, d, &ConnackPacket{})

		pub1 := newAckRecorder()
		c.Publish(&Message{Topic: "a", Payload: []byte("1"), QoS: QoS1}, pub1.fn)
		expectPacket[*PublishPacket](t, tr)

		pub2 := newAckRecorder()
		c.Publish(&Message{Topic: "a", Payload: []byte("2"), QoS: QoS2}, pub2.fn)
		expectPacket[*PublishPacket](t, tr)

		sub := newAckRecorder()
		c.On("b/#", QoS1, MessageHandlerFunc(func(string, []byte, time.Time) {}), sub.fn)
		expectPacket[*SubscribePacket](t, tr)

		require.NoError(t, c.DisconnectAndClose())
		expectPacket[*DisconnectPacket](t, tr)

		assert.ErrorIs(t, pub1.wait(t), ErrConnectionClosed)
		assert.ErrorIs(t, pub2.wait(t), ErrConnectionClosed)
		assert.ErrorIs(t, sub.wait(t), ErrConnectionClosed)

		assert.Equal(t, StateClosed, c.State())
		assert.Equal(t, 0, c.ids.InUse())
		assert.Equal(t, 0, c.flow.InFlight())
	})

	t.Run("fails pending unsubscribe", func(t *testing.T) {
		c, d := newTestClient(t)
		tr := connectClient(t, c, d, &ConnackPacket{})

		sub := newAckRecorder()
		c.On("b", QoS0, MessageHandlerFunc(func(string, []byte, time.Time) {}), sub.fn)
		subPkt := expectPacket[*SubscribePacket](t, tr)
		tr.send(&SubackPacket{PacketID: subPkt.PacketID, ReasonCodes: []ReasonCode{ReasonSuccess}})
		require.NoError(t, sub.wait(t))

		token := c.Off("b")
		expectPacket[*UnsubscribePacket](t, tr)

		require.NoError(t, c.DisconnectAndClose())

		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		assert.ErrorIs(t, token.Wait(ctx), ErrConnectionClosed)
	})

	t.Run("rejects later calls", func(t *testing.T) {
		c, d := newTestClient(t)
		connectClient(t, c, d, &ConnackPacket{})

		require.NoError(t, c.DisconnectAndClose())
		assert.NoError(t, c.DisconnectAndClose())

		pub := newAckRecorder()
		c.Publish(&Message{Topic: "a", QoS: QoS1}, pub.fn)
		assert.ErrorIs(t, pub.wait(t), ErrClientClosed)

		sub := newAckRecorder()
		assert.Nil(t, c.On("a", QoS0, MessageHandlerFunc(func(string, []byte, time.Time) {}), sub.fn))
		assert.ErrorIs(t, sub.wait(t), ErrClientClosed)

		assert.ErrorIs(t, c.Off("a").Err(), ErrClientClosed)

		result := make(chan error, 1)
		c.Connect(context.Background(), "tcp://broker:1883", func(_ *ConnectResult, err error) {
			result <- err
		})
		assert.ErrorIs(t, <-result, ErrClientClosed)

		assert.ErrorIs(t, c.Disconnect(), ErrClientClosed)
	})

	t.Run("before connect", func(t *testing.T) {
		c, _ := newTestClient(t)

		sub := newAckRecorder()
		c.On("queued", QoS1, MessageHandlerFunc(func(string, []byte, time.Time) {}), sub.fn)

		require.NoError(t, c.DisconnectAndClose())
		assert.ErrorIs(t, sub.wait(t), ErrConnectionClosed)
	})
}

func TestConnectionLost(t *testing.T) {
	t.Run("clean session fails pending operations", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option())
		tr := connectClient(t, c, d, &ConnackPacket{})

		pub := newAckRecorder()
		c.Publish(&Message{Topic: "a", Payload: []byte("x"), QoS: QoS1}, pub.fn)
		expectPacket[*PublishPacket](t, tr)

		require.NoError(t, tr.Close())

		assert.ErrorIs(t, pub.wait(t), ErrConnectionClosed)
		events.waitFor(t, ErrConnectionLost)
		assert.Equal(t, StateDisconnected, c.State())
		assert.Equal(t, 0, c.ids.InUse())
	})

	t.Run("server DISCONNECT", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option())
		tr := connectClient(t, c, d, &ConnackPacket{})

		tr.send(&DisconnectPacket{})

		ev := events.waitFor(t, ErrConnectionLost)
		assert.ErrorIs(t, ev, ErrServerDisconnect)

		var de *DisconnectError
		require.ErrorAs(t, ev, &de)
		assert.True(t, de.Remote)
	})

	t.Run("write failure closes the connection", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option())
		tr := connectClient(t, c, d, &ConnackPacket{})

		tr.failWrites(errors.New("broken pipe"))

		pub := newAckRecorder()
		c.Publish(&Message{Topic: "a", Payload: []byte("x"), QoS: QoS1}, pub.fn)

		assert.ErrorIs(t, pub.wait(t), ErrConnectionClosed)
		events.waitFor(t, ErrConnectionLost)
	})
}

func TestAutoReconnect(t *testing.T) {
	t.Run("reconnects after loss", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t,
			events.option(),
			WithAutoReconnect(true),
			WithReconnectBackoff(10*time.Millisecond),
		)
		tr := connectClient(t, c, d, &ConnackPacket{})

		require.NoError(t, tr.Close())

		var re *ReconnectEvent
		require.ErrorAs(t, events.waitFor(t, ErrReconnecting), &re)
		assert.Equal(t, 1, re.Attempt)

		tr = d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		tr.send(&ConnackPacket{})

		var ce *ConnectedEvent
		require.ErrorAs(t, events.waitFor(t, ErrConnected), &ce)
		assert.True(t, ce.Reconnect)
		assert.True(t, c.IsConnected())
	})

	t.Run("stops when refused", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t,
			events.option(),
			WithAutoReconnect(true),
			WithReconnectBackoff(10*time.Millisecond),
		)
		tr := connectClient(t, c, d, &ConnackPacket{})

		require.NoError(t, tr.Close())

		tr = d.next(t)
		expectPacket[*ConnectPacket](t, tr)
		tr.send(&ConnackPacket{ReasonCode: ReasonBadUserNameOrPassword})

		events.waitFor(t, ErrReconnectFailed)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(2), d.dials.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t,
			events.option(),
			WithAutoReconnect(true),
			WithMaxReconnects(2),
			WithReconnectBackoff(5*time.Millisecond),
			WithBackoffStrategy(func(_ int, current time.Duration, _ error) time.Duration {
				return current
			}),
		)
		tr := connectClient(t, c, d, &ConnackPacket{})

		d.failDials(errors.New("unreachable"))
		require.NoError(t, tr.Close())

		events.waitFor(t, ErrReconnectFailed)
		assert.Equal(t, int32(3), d.dials.Load())
		assert.Equal(t, StateDisconnected, c.State())
	})
}

func TestKeepAlive(t *testing.T) {
	t.Run("closes without PINGRESP", func(t *testing.T) {
		events := newEventRecorder()
		c, d := newTestClient(t, events.option(), WithKeepAlive(1))
		tr := connectClient(t, c, d, &ConnackPacket{})

		select {
		case pkt := <-tr.written:
			assert.IsType(t, &PingreqPacket{}, pkt)
		case <-time.After(testTimeout):
			t.Fatal("no PINGREQ")
		}

		ev := events.waitFor(t, ErrConnectionLost)
		assert.ErrorIs(t, ev, ErrKeepAliveTimeout)
	})

	t.Run("stays connected with PINGRESP", func(t *testing.T) {
		c, d := newTestClient(t, WithKeepAlive(1))
		tr := connectClient(t, c, d, &ConnackPacket{})

		deadline := time.After(1600 * time.Millisecond)
		for done := false; !done; {
			select {
			case pkt := <-tr.written:
				if _, ok := pkt.(*PingreqPacket); ok {
					tr.send(&PingrespPacket{})
				}
			case <-deadline:
				done = true
			}
		}

		assert.True(t, c.IsConnected())
	})
}
