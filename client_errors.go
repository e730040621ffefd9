package mqttclient

import (
	"errors"
	"time"
)

// EventHandler receives lifecycle events. Events are errors so they can be
// matched with errors.Is and unpacked with errors.As.
type EventHandler func(client *Client, event error)

// Lifecycle events.
var (
	ErrConnected       = errors.New("connected")
	ErrDisconnected    = errors.New("disconnected")
	ErrConnectionLost  = errors.New("connection lost")
	ErrReconnecting    = errors.New("reconnecting")
	ErrReconnectFailed = errors.New("reconnect failed")
)

// Connection errors.
var (
	// ErrConnectRefused wraps every CONNACK refusal.
	ErrConnectRefused = errors.New("connection refused")

	// ErrAuthFailed is wrapped by refusals for bad credentials or authorization.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConnectFailed wraps transport failures before CONNACK.
	ErrConnectFailed = errors.New("connect failed")

	ErrConnectTimeout    = errors.New("connect timeout")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNoPreviousConnect = errors.New("reconnect without previous connect")
	ErrServerDisconnect  = errors.New("server disconnect")
	ErrKeepAliveTimeout  = errors.New("keep-alive timeout")
	ErrProtocolError     = errors.New("protocol error")
)

// Operation errors, delivered through AckFunc and Token.
var (
	// ErrNotConnected is returned for a publish without a live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed fails every pending operation when the
	// connection goes away and its state is not kept.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrClientClosed is returned after DisconnectAndClose.
	ErrClientClosed = errors.New("client closed")

	// ErrRateLimited is returned when the server answers a QoS 2 publish
	// with a quota exceeded PUBREC.
	ErrRateLimited = errors.New("rate limits detected")

	// ErrRetriesExhausted is returned when retransmission gave up.
	ErrRetriesExhausted = errors.New("retransmission retries exhausted")

	ErrPublishFailed   = errors.New("publish failed")
	ErrSubscribeFailed = errors.New("subscribe failed")
	ErrInvalidQoS      = errors.New("invalid QoS")
	ErrNilHandler      = errors.New("nil message handler")
)

// ConnectedEvent is emitted after every accepted CONNACK.
type ConnectedEvent struct {
	err            error
	SessionPresent bool
	Reconnect      bool
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

func newConnectedEvent(sessionPresent, reconnect bool) *ConnectedEvent {
	return &ConnectedEvent{
		err:            ErrConnected,
		SessionPresent: sessionPresent,
		Reconnect:      reconnect,
	}
}

// DisconnectError describes a graceful disconnection.
type DisconnectError struct {
	err        error
	ReasonCode ReasonCode
	// Remote is true if the server sent the DISCONNECT.
	Remote bool
}

func (e *DisconnectError) Error() string {
	if e.Remote {
		return "server disconnect: " + e.ReasonCode.String()
	}
	return "disconnected"
}

func (e *DisconnectError) Unwrap() error { return e.err }

func newDisconnectError(reason ReasonCode, remote bool) *DisconnectError {
	base := ErrDisconnected
	if remote {
		base = ErrServerDisconnect
	}
	return &DisconnectError{
		err:        base,
		ReasonCode: reason,
		Remote:     remote,
	}
}

// ReconnectEvent is emitted before each automatic reconnection attempt.
type ReconnectEvent struct {
	err         error
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

func (e *ReconnectEvent) Error() string { return e.err.Error() }
func (e *ReconnectEvent) Unwrap() error { return e.err }

func newReconnectEvent(attempt, maxAttempts int, delay time.Duration) *ReconnectEvent {
	return &ReconnectEvent{
		err:         ErrReconnecting,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}
}

// PublishError is a publish rejected by the server with a reason code.
type PublishError struct {
	err        error
	Topic      string
	PacketID   uint16
	ReasonCode ReasonCode
}

func (e *PublishError) Error() string {
	return "publish failed: " + e.ReasonCode.String()
}

func (e *PublishError) Unwrap() error { return e.err }

func newPublishError(topic string, packetID uint16, reason ReasonCode) *PublishError {
	base := ErrPublishFailed
	if reason == ReasonQuotaExceeded {
		base = ErrRateLimited
	}
	return &PublishError{
		err:        base,
		Topic:      topic,
		PacketID:   packetID,
		ReasonCode: reason,
	}
}

// SubscribeError is a subscription refused in SUBACK.
type SubscribeError struct {
	err        error
	Filter     string
	ReasonCode ReasonCode
}

func (e *SubscribeError) Error() string {
	return "subscribe " + e.Filter + " failed: " + e.ReasonCode.String()
}

func (e *SubscribeError) Unwrap() error { return e.err }

func newSubscribeError(filter string, reason ReasonCode) *SubscribeError {
	return &SubscribeError{
		err:        ErrSubscribeFailed,
		Filter:     filter,
		ReasonCode: reason,
	}
}

// ConnectionLostError is emitted when the transport fails.
type ConnectionLostError struct {
	err   error
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.err}
	}
	return []error{e.err, e.Cause}
}

func newConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{
		err:   ErrConnectionLost,
		Cause: cause,
	}
}

// ConnectError is a failed connection attempt: either a refusal carried in
// CONNACK, or a transport failure before CONNACK arrived (Cause set).
type ConnectError struct {
	err        error
	ReasonCode ReasonCode
	Cause      error
}

func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return "connect failed: " + e.Cause.Error()
	}
	return "connect failed: " + e.ReasonCode.String()
}

func (e *ConnectError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.err}
	}
	return []error{e.err, e.Cause}
}

func newConnectRefused(reason ReasonCode) *ConnectError {
	base := ErrConnectRefused
	if reason == ReasonBadUserNameOrPassword || reason == ReasonNotAuthorized {
		base = errors.Join(ErrConnectRefused, ErrAuthFailed)
	}
	return &ConnectError{
		err:        base,
		ReasonCode: reason,
	}
}

func newConnectFailure(cause error) *ConnectError {
	return &ConnectError{
		err:        ErrConnectFailed,
		ReasonCode: ReasonUnspecifiedError,
		Cause:      cause,
	}
}
