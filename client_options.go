package mqttclient

import (
	"time"

	"golang.org/x/time/rate"
)

// BackoffStrategy computes the wait before automatic reconnection attempt
// number attempt (1-based), given the previous wait and the last error.
type BackoffStrategy func(attempt int, currentBackoff time.Duration, err error) time.Duration

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// CONNECT fields
	clientID        string
	username        string
	password        []byte
	keepAlive       uint16
	cleanSession    bool
	protocolVersion ProtocolVersion

	willTopic   string
	willPayload []byte
	willRetain  bool
	willQoS     byte

	dialer         Dialer
	connectTimeout time.Duration

	logger  Logger
	metrics Metrics
	onEvent EventHandler

	defaultHandler MessageHandler
	handlerWorkers int
	handlerQueue   int

	retry       RetryPolicy
	maxInflight int

	// replay pacing after a reconnect; zero limit means unpaced
	replayLimit rate.Limit
	replayBurst int

	autoReconnect    bool
	maxReconnects    int
	reconnectBackoff time.Duration
	maxBackoff       time.Duration
	backoffStrategy  BackoffStrategy
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		keepAlive:        60,
		cleanSession:     true,
		protocolVersion:  ProtocolMQTT311,
		dialer:           &NetDialer{},
		connectTimeout:   10 * time.Second,
		logger:           NewNoOpLogger(),
		metrics:          &NoOpMetrics{},
		retry:            DefaultRetryPolicy(),
		maxReconnects:    10,
		reconnectBackoff: time.Second,
		maxBackoff:       time.Minute,
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithClientID sets the client identifier. Without it a random
// "mqttc-<uuid>" identifier is generated.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password sent in CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = []byte(password)
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables it.
func WithKeepAlive(seconds uint16) Option {
	return func(o *clientOptions) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets the clean session flag. With false, pending
// publishes, subscribes and unsubscribes survive a lost connection and are
// replayed by Reconnect.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithProtocolVersion selects the protocol level sent in CONNECT. The
// default transport frames 3.1 and 3.1.1 only.
func WithProtocolVersion(v ProtocolVersion) Option {
	return func(o *clientOptions) {
		o.protocolVersion = v
	}
}

// WithWill sets the message the server publishes if the client vanishes.
func WithWill(topic string, payload []byte, retain bool, qos byte) Option {
	return func(o *clientOptions) {
		o.willTopic = topic
		o.willPayload = payload
		o.willRetain = retain
		o.willQoS = qos
	}
}

// WithDialer replaces the default NetDialer.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithConnectTimeout bounds dialing plus waiting for CONNACK.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// OnEvent sets the handler for lifecycle events.
func OnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = handler
	}
}

// WithDefaultHandler receives messages that matched no subscription.
func WithDefaultHandler(h MessageHandler) Option {
	return func(o *clientOptions) {
		o.defaultHandler = h
	}
}

// WithHandlerWorkers runs message handlers on n goroutines instead of the
// reader goroutine. Handlers for one message may then run out of order
// relative to other messages. queue bounds the backlog; zero picks 16 per
// worker.
func WithHandlerWorkers(n, queue int) Option {
	return func(o *clientOptions) {
		o.handlerWorkers = n
		o.handlerQueue = queue
	}
}

// WithRetryPolicy sets the retransmission policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *clientOptions) {
		o.retry = p
	}
}

// WithMaxInflight caps QoS 1/2 publishes awaiting acknowledgment. Publishes
// over the cap fail with ErrQuotaExceeded. Zero means unlimited.
func WithMaxInflight(n int) Option {
	return func(o *clientOptions) {
		o.maxInflight = n
	}
}

// WithReplayRateLimit paces the packets resent after a reconnect.
func WithReplayRateLimit(perSecond float64, burst int) Option {
	return func(o *clientOptions) {
		o.replayLimit = rate.Limit(perSecond)
		o.replayBurst = burst
	}
}

// WithAutoReconnect calls Reconnect after an unexpected connection loss.
// A refused CONNACK never triggers it.
func WithAutoReconnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enabled
	}
}

// WithMaxReconnects sets the number of automatic attempts. Zero or negative
// retries forever.
func WithMaxReconnects(n int) Option {
	return func(o *clientOptions) {
		o.maxReconnects = n
	}
}

// WithReconnectBackoff sets the first wait between automatic attempts.
func WithReconnectBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectBackoff = d
	}
}

// WithMaxBackoff caps the wait between automatic attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.maxBackoff = d
	}
}

// WithBackoffStrategy overrides the doubling backoff of automatic attempts.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(o *clientOptions) {
		o.backoffStrategy = strategy
	}
}

func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
