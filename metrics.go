package mqttclient

import (
	"strconv"
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics is the sink the client reports to. Plug in an adapter for your
// metrics backend; NoOpMetrics is used when nothing is configured.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	Observe(value float64)
	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)
	Count() uint64
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter     { return noOpCounter{} }
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge         { return noOpGauge{} }
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram { return noOpHistogram{} }

type noOpCounter struct{}

func (noOpCounter) Inc()           {}
func (noOpCounter) Add(_ float64)  {}
func (noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (noOpGauge) Set(_ float64)  {}
func (noOpGauge) Inc()           {}
func (noOpGauge) Dec()           {}
func (noOpGauge) Add(_ float64)  {}
func (noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (noOpHistogram) Observe(_ float64)               {}
func (noOpHistogram) ObserveDuration(_ time.Duration) {}
func (noOpHistogram) Count() uint64                   { return 0 }
func (noOpHistogram) Sum() float64                    { return 0 }

// Metric names reported by the client.
const (
	MetricConnects          = "mqttc_connects_total"
	MetricConnectFailures   = "mqttc_connect_failures_total"
	MetricConnectionsLost   = "mqttc_connections_lost_total"
	MetricPacketsSent       = "mqttc_packets_sent_total"
	MetricPacketsReceived   = "mqttc_packets_received_total"
	MetricMessagesPublished = "mqttc_messages_published_total"
	MetricMessagesDelivered = "mqttc_messages_delivered_total"
	MetricMessagesUnrouted  = "mqttc_messages_unrouted_total"
	MetricRetransmissions   = "mqttc_retransmissions_total"
	MetricPublishFailures   = "mqttc_publish_failures_total"
	MetricInflight          = "mqttc_inflight_publishes"
	MetricSubscriptions     = "mqttc_subscriptions"
	MetricAckLatency        = "mqttc_ack_latency_seconds"
)

// Metric labels.
const (
	LabelPacketType = "packet_type"
	LabelQoS        = "qos"
	LabelReason     = "reason"
)

// ClientMetrics wraps a Metrics sink with the client's instrumentation points.
type ClientMetrics struct {
	metrics Metrics
}

// NewClientMetrics creates a ClientMetrics. A nil sink discards everything.
func NewClientMetrics(m Metrics) *ClientMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &ClientMetrics{metrics: m}
}

func qosLabel(qos byte) MetricLabels {
	return MetricLabels{LabelQoS: strconv.Itoa(int(qos))}
}

func (c *ClientMetrics) Connected() {
	c.metrics.Counter(MetricConnects, nil).Inc()
}

func (c *ClientMetrics) ConnectFailed(reason string) {
	c.metrics.Counter(MetricConnectFailures, MetricLabels{LabelReason: reason}).Inc()
}

func (c *ClientMetrics) ConnectionLost() {
	c.metrics.Counter(MetricConnectionsLost, nil).Inc()
}

func (c *ClientMetrics) PacketSent(t PacketType) {
	c.metrics.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: t.String()}).Inc()
}

func (c *ClientMetrics) PacketReceived(t PacketType) {
	c.metrics.Counter(MetricPacketsReceived, MetricLabels{LabelPacketType: t.String()}).Inc()
}

func (c *ClientMetrics) Published(qos byte) {
	c.metrics.Counter(MetricMessagesPublished, qosLabel(qos)).Inc()
}

// Delivered records an inbound message handed to n handlers.
func (c *ClientMetrics) Delivered(qos byte, n int) {
	if n == 0 {
		c.metrics.Counter(MetricMessagesUnrouted, nil).Inc()
		return
	}
	c.metrics.Counter(MetricMessagesDelivered, qosLabel(qos)).Add(float64(n))
}

func (c *ClientMetrics) Retransmitted(t PacketType) {
	c.metrics.Counter(MetricRetransmissions, MetricLabels{LabelPacketType: t.String()}).Inc()
}

func (c *ClientMetrics) PublishFailed(reason string) {
	c.metrics.Counter(MetricPublishFailures, MetricLabels{LabelReason: reason}).Inc()
}

func (c *ClientMetrics) InflightAdded() {
	c.metrics.Gauge(MetricInflight, nil).Inc()
}

func (c *ClientMetrics) InflightRemoved() {
	c.metrics.Gauge(MetricInflight, nil).Dec()
}

func (c *ClientMetrics) SubscriptionsActive(n int) {
	c.metrics.Gauge(MetricSubscriptions, nil).Set(float64(n))
}

// AckLatency records the time between the first send and the final ack.
func (c *ClientMetrics) AckLatency(qos byte, d time.Duration) {
	c.metrics.Histogram(MetricAckLatency, qosLabel(qos)).ObserveDuration(d)
}
