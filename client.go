package mqttclient

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Message is an application message to publish.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// connection is one transport session, from dial until the reader exits.
type connection struct {
	transport Transport
	connect   *connectCompletion

	ctx    context.Context
	cancel context.CancelFunc

	established   chan struct{}
	establishOnce sync.Once
	// done is closed after the reader exited and the loss was handled.
	done chan struct{}

	closeOnce sync.Once
	cause     error

	// graceful is set when the local side disconnected on purpose.
	graceful  atomic.Bool
	refused   atomic.Bool
	lastWrite atomic.Int64
	pingSent  atomic.Int64
}

func newConnection(transport Transport, connect *connectCompletion) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		transport:   transport,
		connect:     connect,
		ctx:         ctx,
		cancel:      cancel,
		established: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// close shuts the transport down once and returns the first cause.
func (cn *connection) close(cause error) error {
	cn.closeOnce.Do(func() {
		cn.cause = cause
		cn.cancel()
		_ = cn.transport.Close()
	})
	return cn.cause
}

func (cn *connection) closed() bool {
	return cn.ctx.Err() != nil
}

func (cn *connection) establish() {
	cn.establishOnce.Do(func() { close(cn.established) })
}

func (cn *connection) isEstablished() bool {
	select {
	case <-cn.established:
		return true
	default:
		return false
	}
}

// Client is an MQTT client protocol engine. It is safe for concurrent use.
//
// One reader goroutine per connection decodes inbound packets and runs the
// dispatcher; every outbound packet goes through a single write lock.
type Client struct {
	opts    *clientOptions
	logger  Logger
	metrics *ClientMetrics

	state atomic.Int32

	// sessionMu is held shared by operations that check the state and queue
	// work, and exclusively while CONNACK flushes queued work or a lost
	// connection is settled.
	sessionMu sync.RWMutex

	connMu        sync.Mutex
	conn          *connection
	address       string
	everConnected bool

	writeMu sync.Mutex

	ids      *PacketIDManager
	pubs     *publishTracker
	subs     *subscribeTracker
	unsubs   *unsubscribeTracker
	inbound  *inboundTracker
	registry *subscriptionRegistry
	flow     *FlowController
	limiter  *rate.Limiter
	workers  *handlerPool

	reconnecting atomic.Bool
	closed       chan struct{}
	closeOnce    sync.Once
}

// New creates a disconnected client.
func New(opts ...Option) *Client {
	options := applyOptions(opts...)
	if options.clientID == "" {
		options.clientID = generateClientID()
	}

	c := &Client{
		opts:    options,
		logger:  options.logger.WithFields(LogFields{LogFieldClientID: options.clientID}),
		metrics: NewClientMetrics(options.metrics),
		ids:     NewPacketIDManager(),
		pubs:    newPublishTracker(),
		subs:    newSubscribeTracker(),
		unsubs:  newUnsubscribeTracker(),
		inbound: newInboundTracker(),
		flow:    NewFlowController(options.maxInflight),
		workers: newHandlerPool(options.handlerWorkers, options.handlerQueue),
		closed:  make(chan struct{}),
	}

	c.registry = newSubscriptionRegistry(options.defaultHandler, c.workers)
	c.registry.expired = func(sub *Subscription) {
		c.Off(sub.Filter(), sub)
	}

	if options.replayLimit > 0 {
		burst := options.replayBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(options.replayLimit, burst)
	}

	return c
}

// DialContext creates a client and blocks until the broker accepted the
// connection or ctx is done.
func DialContext(ctx context.Context, address string, opts ...Option) (*Client, error) {
	c := New(opts...)

	result := make(chan error, 1)
	c.Connect(ctx, address, func(_ *ConnectResult, err error) {
		result <- err
	})

	select {
	case err := <-result:
		if err != nil {
			_ = c.DisconnectAndClose()
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		_ = c.DisconnectAndClose()
		return nil, ctx.Err()
	}
}

func generateClientID() string {
	return "mqttc-" + uuid.NewString()
}

// ClientID returns the client identifier.
func (c *Client) ClientID() string {
	return c.opts.clientID
}

// State returns the lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether CONNACK accepted the current connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials address and sends CONNECT. It returns at once; callback
// receives the CONNACK outcome. ctx bounds dialing and the wait for CONNACK.
func (c *Client) Connect(ctx context.Context, address string, callback ConnectFunc) {
	done := newConnectCompletion(callback)

	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		done.fail(c.busyError())
		return
	}

	c.connMu.Lock()
	c.address = address
	c.connMu.Unlock()

	go c.connect(ctx, address, done)
}

// Reconnect connects again to the address of the last Connect. With a
// persistent session the pending publishes and unsubscribes are replayed.
func (c *Client) Reconnect(ctx context.Context, callback ConnectFunc) {
	done := newConnectCompletion(callback)

	c.connMu.Lock()
	address := c.address
	c.connMu.Unlock()

	if address == "" {
		done.fail(ErrNoPreviousConnect)
		return
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateReconnecting)) {
		done.fail(c.busyError())
		return
	}

	go c.connect(ctx, address, done)
}

func (c *Client) busyError() error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}
	return ErrAlreadyConnected
}

func (c *Client) connect(ctx context.Context, address string, done *connectCompletion) {
	var cancel context.CancelFunc
	if c.opts.connectTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.connectTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	c.logger.Debug("dialing", LogFields{LogFieldRemoteAddr: address})

	transport, err := c.opts.dialer.Dial(ctx, address)
	if err != nil {
		c.connectFailed(newConnectFailure(err), "dial", done)
		return
	}

	conn := newConnection(transport, done)

	c.connMu.Lock()
	if c.State() == StateClosed {
		c.connMu.Unlock()
		_ = transport.Close()
		done.fail(ErrClientClosed)
		return
	}
	c.conn = conn
	c.connMu.Unlock()

	if err := c.writeTo(conn, c.connectPacket()); err != nil {
		c.detach(conn)
		c.connectFailed(newConnectFailure(err), "write", done)
		return
	}

	go c.readLoop(conn)
	if c.opts.keepAlive > 0 {
		go c.keepAlive(conn)
	}

	select {
	case <-conn.established:
	case <-conn.done:
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectTimeout
		}

		// CONNACK is handled under sessionMu, so the connection is either
		// established already or closed before it can be.
		c.sessionMu.Lock()
		if conn.isEstablished() {
			c.sessionMu.Unlock()
			return
		}
		conn.close(err)
		c.sessionMu.Unlock()

		done.fail(newConnectFailure(err))
	}
}

// connectFailed settles an attempt that never produced a connection.
func (c *Client) connectFailed(err error, reason string, done *connectCompletion) {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
	c.state.CompareAndSwap(int32(StateReconnecting), int32(StateDisconnected))
	c.metrics.ConnectFailed(reason)
	c.logger.Warn("connect failed", LogFields{LogFieldError: err.Error()})
	done.fail(err)
}

func (c *Client) detach(conn *connection) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) connectPacket() *ConnectPacket {
	o := c.opts
	pkt := &ConnectPacket{
		ProtocolVersion: o.protocolVersion,
		ClientID:        o.clientID,
		CleanSession:    o.cleanSession,
		KeepAlive:       o.keepAlive,
		Username:        o.username,
		Password:        o.password,
	}
	if o.willTopic != "" {
		pkt.WillFlag = true
		pkt.WillTopic = o.willTopic
		pkt.WillPayload = o.willPayload
		pkt.WillQoS = o.willQoS
		pkt.WillRetain = o.willRetain
	}
	return pkt
}

// Disconnect sends DISCONNECT and closes the transport. Pending state of a
// persistent session is kept for Reconnect.
func (c *Client) Disconnect() error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	conn.graceful.Store(true)
	if conn.isEstablished() {
		_ = c.writeTo(conn, &DisconnectPacket{})
	}
	conn.close(ErrDisconnected)

	select {
	case <-conn.done:
	case <-time.After(time.Second):
	}
	return nil
}

// DisconnectAndClose sends DISCONNECT without waiting, closes the transport
// and fails every pending operation with ErrConnectionClosed. The client
// cannot be used afterwards.
func (c *Client) DisconnectAndClose() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		close(c.closed)
	})
	if !first {
		return nil
	}

	c.sessionMu.Lock()
	c.state.Store(int32(StateClosed))

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.graceful.Store(true)
		if conn.isEstablished() {
			_ = c.writeTo(conn, &DisconnectPacket{})
		}
		conn.close(ErrConnectionClosed)
	}

	pending := c.drainSession()
	c.sessionMu.Unlock()

	if conn != nil {
		conn.connect.fail(ErrConnectionClosed)
	}
	pending.fail(c, ErrConnectionClosed)

	go c.workers.stop()

	c.logger.Info("client closed", nil)
	c.emit(newDisconnectError(ReasonSuccess, false))
	return nil
}

// Publish sends msg. ack receives nil once the message is acknowledged:
// QoS 0 after the write, QoS 1 after PUBACK, QoS 2 after PUBCOMP.
func (c *Client) Publish(msg *Message, ack AckFunc) {
	done := newCompletion(ack)

	sent, err := c.publish(msg, done)
	if err != nil {
		c.metrics.PublishFailed(failureReason(err))
		done.resolve(err)
		return
	}
	if sent {
		done.resolve(nil)
	}
}

// publish reports sent when a QoS 0 message was written and needs no ack.
func (c *Client) publish(msg *Message, done *completion) (sent bool, err error) {
	if msg == nil {
		return false, ErrInvalidTopicName
	}
	if msg.QoS > QoS2 {
		return false, ErrInvalidQoS
	}
	if err := ValidateTopicName(msg.Topic); err != nil {
		return false, err
	}

	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	switch c.State() {
	case StateConnected:
	case StateClosed:
		return false, ErrClientClosed
	default:
		return false, ErrNotConnected
	}

	pkt := &PublishPacket{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	}

	if msg.QoS > QoS0 {
		// Kept for retransmission after the caller may have reused the buffer.
		pkt.Payload = bytes.Clone(msg.Payload)
	}

	if msg.QoS == QoS0 {
		if err := c.writePacket(pkt); err != nil {
			return false, err
		}
		c.metrics.Published(QoS0)
		return true, nil
	}

	if err := c.flow.Acquire(); err != nil {
		return false, err
	}
	id, err := c.ids.Allocate()
	if err != nil {
		c.flow.Release()
		return false, err
	}
	pkt.PacketID = id

	e := c.pubs.add(pkt, done)
	c.metrics.InflightAdded()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.writePacket(pkt); err != nil {
		// The entry stays pending: the lost connection settles it.
		c.logger.Debug("publish write failed", LogFields{
			LogFieldTopic:    pkt.Topic,
			LogFieldPacketID: id,
			LogFieldError:    err.Error(),
		})
		return false, nil
	}
	c.metrics.Published(pkt.QoS)
	c.armLocked(e)
	return false, nil
}

// On subscribes handler to filter. ack receives the SUBACK outcome. While
// disconnected the request is queued and sent after the next CONNACK.
// Calls for a filter already waiting for SUBACK share its SUBSCRIBE.
func (c *Client) On(filter string, qos byte, handler MessageHandler, ack AckFunc) *Subscription {
	return c.subscribe(filter, qos, handler, false, ack)
}

// Once is On for a single delivery: the subscription is removed after the
// first message and unsubscribed when nothing else listens on filter.
func (c *Client) Once(filter string, qos byte, handler MessageHandler, ack AckFunc) *Subscription {
	return c.subscribe(filter, qos, handler, true, ack)
}

func (c *Client) subscribe(filter string, qos byte, handler MessageHandler, oneShot bool, ack AckFunc) *Subscription {
	done := newCompletion(ack)

	if err := ValidateTopicFilter(filter); err != nil {
		done.resolve(err)
		return nil
	}
	if qos > QoS2 {
		done.resolve(ErrInvalidQoS)
		return nil
	}
	if handler == nil {
		done.resolve(ErrNilHandler)
		return nil
	}

	sub := newSubscription(filter, qos, handler, oneShot)

	live, err := c.queueSubscription(sub, done)
	if err != nil {
		done.resolve(err)
		return nil
	}
	if live {
		done.resolve(nil)
	}
	return sub
}

// queueSubscription reports live when sub joined a filter the server
// already acknowledged at a sufficient QoS.
func (c *Client) queueSubscription(sub *Subscription, done *completion) (live bool, err error) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if c.State() == StateClosed {
		return false, ErrClientClosed
	}

	if !c.subs.pending(sub.filter) {
		if granted, ok := c.registry.maxQoS(sub.filter); ok && granted >= sub.qos {
			sub.granted = granted
			c.registry.register(sub)
			c.metrics.SubscriptionsActive(c.registry.len())
			return true, nil
		}
	}

	entry, created, err := c.subs.add(sub.filter, sub.qos, sub, done, c.ids.Allocate)
	if err != nil {
		return false, err
	}
	if !created {
		c.logger.Debug("subscription joined pending request", LogFields{
			LogFieldFilter:   sub.filter,
			LogFieldPacketID: entry.id,
		})
	}

	if c.State() == StateConnected {
		if pkt := c.subs.markSent(entry); pkt != nil {
			_ = c.writePacket(pkt)
		}
	}
	return false, nil
}

// Off removes subs from filter, or every subscription of filter when none
// are given. UNSUBSCRIBE is sent once nothing listens on filter any more.
func (c *Client) Off(filter string, subs ...*Subscription) *Token {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if c.State() == StateClosed {
		return completedToken(ErrClientClosed)
	}

	live := false
	pending := c.subs.cancel(filter, subs, func() {
		if len(subs) == 0 {
			c.registry.removeAll(filter)
		} else {
			for _, s := range subs {
				if s != nil {
					c.registry.remove(filter, s)
				}
			}
		}
		live = c.registry.hasFilter(filter)
	})
	c.metrics.SubscriptionsActive(c.registry.len())

	// A pending SUBSCRIBE unsubscribes itself after SUBACK if nothing is left.
	if live || pending {
		return completedToken(nil)
	}

	state := c.State()
	if state != StateConnected && (c.opts.cleanSession || !c.hasConnected()) {
		return completedToken(nil)
	}

	token := newToken()
	if err := c.sendUnsubscribe(filter, token, state == StateConnected); err != nil {
		token.complete(err)
	}
	return token
}

func (c *Client) sendUnsubscribe(filter string, token *Token, connected bool) error {
	id, err := c.ids.Allocate()
	if err != nil {
		return err
	}

	p := c.unsubs.add(filter, id, token)
	if connected {
		_ = c.writePacket(p.packet())
	}
	return nil
}

func (c *Client) hasConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.everConnected
}

// writePacket writes pkt to the current connection.
func (c *Client) writePacket(pkt Packet) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return c.writeTo(conn, pkt)
}

// writeTo serializes writes on conn. A failed write closes the connection so
// the reader settles the loss.
func (c *Client) writeTo(conn *connection, pkt Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if conn.closed() {
		return ErrNotConnected
	}

	if err := conn.transport.WritePacket(pkt); err != nil {
		c.logger.Debug("write failed", LogFields{
			LogFieldPacketType: pkt.Type().String(),
			LogFieldError:      err.Error(),
		})
		conn.close(err)
		return err
	}

	conn.lastWrite.Store(time.Now().UnixNano())
	c.metrics.PacketSent(pkt.Type())
	return nil
}

// releasePublish frees the identifier and quota of a finished publish.
func (c *Client) releasePublish(e *pendingPublish) {
	_ = c.ids.Release(e.id)
	c.flow.Release()
	c.metrics.InflightRemoved()
}

// finishPublish resolves a publish removed from the tracker.
func (c *Client) finishPublish(e *pendingPublish, err error) {
	c.releasePublish(e)
	if err != nil {
		c.metrics.PublishFailed(failureReason(err))
	} else {
		c.metrics.AckLatency(e.qos, time.Since(e.sentAt))
	}
	e.done.resolve(err)
}

// emit sends an event to the event handler.
func (c *Client) emit(event error) {
	if c.opts.onEvent != nil {
		c.opts.onEvent(c, event)
	}
}

// readLoop is the event loop of conn: packets are dispatched strictly in
// arrival order.
func (c *Client) readLoop(conn *connection) {
	var err error
	for {
		var pkt Packet
		pkt, err = conn.transport.ReadPacket()
		if err != nil {
			break
		}
		c.metrics.PacketReceived(pkt.Type())
		c.handlePacket(conn, pkt)
	}

	cause := conn.close(err)
	c.connectionClosed(conn, cause)
	close(conn.done)
}

// connectionClosed settles the client after the reader of conn exited.
func (c *Client) connectionClosed(conn *connection, cause error) {
	c.detach(conn)

	if !conn.isEstablished() {
		if !conn.refused.Load() {
			c.connectFailed(newConnectFailure(cause), "closed", conn.connect)
			return
		}
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
		c.state.CompareAndSwap(int32(StateReconnecting), int32(StateDisconnected))
		return
	}

	c.sessionMu.Lock()
	if c.State() == StateClosed {
		c.sessionMu.Unlock()
		return
	}
	c.state.Store(int32(StateDisconnected))

	var pending drainedSession
	if c.opts.cleanSession {
		pending = c.drainSession()
	} else {
		c.suspendTimers()
		c.subs.unmarkAll()
	}
	c.sessionMu.Unlock()

	pending.fail(c, ErrConnectionClosed)

	if conn.graceful.Load() {
		c.logger.Info("disconnected", nil)
		c.emit(newDisconnectError(ReasonSuccess, false))
		return
	}

	fields := LogFields{}
	if cause != nil {
		fields[LogFieldError] = cause.Error()
	}
	c.logger.Warn("connection lost", fields)
	c.metrics.ConnectionLost()
	c.emit(newConnectionLostError(cause))

	if c.opts.autoReconnect {
		go c.reconnectLoop()
	}
}

// drainedSession holds pending operations removed from the trackers. Their
// callbacks run after the session lock is released.
type drainedSession struct {
	pubs   []*pendingPublish
	subs   []*pendingSubscription
	unsubs []*pendingUnsubscription
}

// drainSession empties every tracker and frees their identifiers. Caller
// holds sessionMu exclusively.
func (c *Client) drainSession() drainedSession {
	d := drainedSession{
		pubs:   c.pubs.drain(),
		subs:   c.subs.drain(),
		unsubs: c.unsubs.drain(),
	}
	for _, p := range d.subs {
		_ = c.ids.Release(p.id)
	}
	for _, p := range d.unsubs {
		_ = c.ids.Release(p.id)
	}
	c.inbound.clear()
	return d
}

func (d drainedSession) fail(c *Client, err error) {
	for _, e := range d.pubs {
		c.finishPublish(e, err)
	}
	for _, p := range d.subs {
		for _, done := range p.allDones() {
			done.resolve(err)
		}
	}
	for _, p := range d.unsubs {
		p.token.complete(err)
	}
}

// keepAlive sends PINGREQ after keepAlive/2 without writes and closes conn
// when no PINGRESP arrived within the keep-alive interval.
func (c *Client) keepAlive(conn *connection) {
	keepAlive := time.Duration(c.opts.keepAlive) * time.Second
	interval := keepAlive / 2

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.ctx.Done():
			return
		case <-ticker.C:
		}

		if !conn.isEstablished() {
			continue
		}

		if sent := conn.pingSent.Load(); sent != 0 && time.Since(time.Unix(0, sent)) >= keepAlive {
			c.logger.Warn("no PINGRESP within keep-alive", nil)
			conn.close(ErrKeepAliveTimeout)
			return
		}

		if time.Since(time.Unix(0, conn.lastWrite.Load())) >= interval {
			if err := c.writeTo(conn, &PingreqPacket{}); err == nil {
				conn.pingSent.CompareAndSwap(0, time.Now().UnixNano())
			}
		}
	}
}

// reconnectLoop calls Reconnect after an unexpected loss until it succeeds,
// the attempts run out, the server refuses or the client is closed.
func (c *Client) reconnectLoop() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	attempt := 0
	backoff := c.opts.reconnectBackoff

	for {
		attempt++
		if c.opts.maxReconnects > 0 && attempt > c.opts.maxReconnects {
			c.logger.Error("reconnect attempts exhausted", LogFields{LogFieldRetry: attempt - 1})
			c.emit(ErrReconnectFailed)
			return
		}

		c.emit(newReconnectEvent(attempt, c.opts.maxReconnects, backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-c.closed:
			timer.Stop()
			return
		case <-timer.C:
		}

		result := make(chan error, 1)
		c.Reconnect(context.Background(), func(_ *ConnectResult, err error) {
			result <- err
		})

		var err error
		select {
		case err = <-result:
		case <-c.closed:
			return
		}

		switch {
		case err == nil, errors.Is(err, ErrAlreadyConnected):
			return
		case errors.Is(err, ErrConnectRefused), errors.Is(err, ErrClientClosed):
			c.emit(ErrReconnectFailed)
			return
		}

		c.logger.Debug("reconnect attempt failed", LogFields{
			LogFieldRetry: attempt,
			LogFieldError: err.Error(),
		})

		if c.opts.backoffStrategy != nil {
			backoff = c.opts.backoffStrategy(attempt, backoff, err)
		} else {
			backoff *= 2
		}
		if c.opts.maxBackoff > 0 && backoff > c.opts.maxBackoff {
			backoff = c.opts.maxBackoff
		}
	}
}

// failureReason maps an operation error to a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrClientClosed):
		return "not_connected"
	case errors.Is(err, ErrPublishFailed):
		return "rejected"
	default:
		return "invalid"
	}
}
