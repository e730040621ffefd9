package mqttclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestDefaultOptions(t *testing.T) {
	o := applyOptions()

	assert.Empty(t, o.clientID)
	assert.Equal(t, uint16(60), o.keepAlive)
	assert.True(t, o.cleanSession)
	assert.Equal(t, ProtocolMQTT311, o.protocolVersion)
	assert.IsType(t, &NetDialer{}, o.dialer)
	assert.Equal(t, 10*time.Second, o.connectTimeout)
	assert.IsType(t, &NoOpLogger{}, o.logger)
	assert.IsType(t, &NoOpMetrics{}, o.metrics)
	assert.Equal(t, DefaultRetryPolicy(), o.retry)
	assert.False(t, o.autoReconnect)
	assert.Equal(t, 10, o.maxReconnects)
	assert.Equal(t, time.Second, o.reconnectBackoff)
	assert.Equal(t, time.Minute, o.maxBackoff)
	assert.Zero(t, o.replayLimit)
}

func TestOptions(t *testing.T) {
	dialer := DialerFunc(func(context.Context, string) (Transport, error) { return nil, nil })
	logger := NewStdLogger(nil, LogLevelDebug)
	metrics := NewMemoryMetrics()
	handler := MessageHandlerFunc(func(string, []byte, time.Time) {})
	strategy := func(int, time.Duration, error) time.Duration { return time.Millisecond }
	policy := RetryPolicy{Interval: time.Second, Multiplier: 2, MaxRetries: 3}

	o := applyOptions(
		WithClientID("id"),
		WithCredentials("user", "pass"),
		WithKeepAlive(15),
		WithCleanSession(false),
		WithProtocolVersion(ProtocolMQTT31),
		WithWill("will/topic", []byte("bye"), true, QoS1),
		WithDialer(dialer),
		WithConnectTimeout(3*time.Second),
		WithLogger(logger),
		WithMetrics(metrics),
		OnEvent(func(*Client, error) {}),
		WithDefaultHandler(handler),
		WithHandlerWorkers(4, 100),
		WithRetryPolicy(policy),
		WithMaxInflight(20),
		WithReplayRateLimit(50, 5),
		WithAutoReconnect(true),
		WithMaxReconnects(-1),
		WithReconnectBackoff(2*time.Second),
		WithMaxBackoff(time.Hour),
		WithBackoffStrategy(strategy),
	)

	assert.Equal(t, "id", o.clientID)
	assert.Equal(t, "user", o.username)
	assert.Equal(t, []byte("pass"), o.password)
	assert.Equal(t, uint16(15), o.keepAlive)
	assert.False(t, o.cleanSession)
	assert.Equal(t, ProtocolMQTT31, o.protocolVersion)
	assert.Equal(t, "will/topic", o.willTopic)
	assert.Equal(t, []byte("bye"), o.willPayload)
	assert.True(t, o.willRetain)
	assert.Equal(t, QoS1, o.willQoS)
	assert.NotNil(t, o.dialer)
	assert.Equal(t, 3*time.Second, o.connectTimeout)
	assert.Same(t, logger, o.logger)
	assert.Same(t, metrics, o.metrics)
	assert.NotNil(t, o.onEvent)
	assert.NotNil(t, o.defaultHandler)
	assert.Equal(t, 4, o.handlerWorkers)
	assert.Equal(t, 100, o.handlerQueue)
	assert.Equal(t, policy, o.retry)
	assert.Equal(t, 20, o.maxInflight)
	assert.Equal(t, rate.Limit(50), o.replayLimit)
	assert.Equal(t, 5, o.replayBurst)
	assert.True(t, o.autoReconnect)
	assert.Equal(t, -1, o.maxReconnects)
	assert.Equal(t, 2*time.Second, o.reconnectBackoff)
	assert.Equal(t, time.Hour, o.maxBackoff)
	assert.NotNil(t, o.backoffStrategy)
}

func TestOptionsIgnoreNil(t *testing.T) {
	o := applyOptions(WithDialer(nil), WithLogger(nil), WithMetrics(nil))

	assert.IsType(t, &NetDialer{}, o.dialer)
	assert.IsType(t, &NoOpLogger{}, o.logger)
	assert.IsType(t, &NoOpMetrics{}, o.metrics)
}

func TestReasonCode(t *testing.T) {
	assert.Equal(t, "success", ReasonSuccess.String())
	assert.Equal(t, "quota exceeded", ReasonQuotaExceeded.String())
	assert.Equal(t, "reason code 0x42", ReasonCode(0x42).String())

	assert.True(t, ReasonGrantedQoS2.IsSuccess())
	assert.False(t, ReasonGrantedQoS2.IsError())
	assert.True(t, ReasonUnspecifiedError.IsError())
	assert.False(t, ReasonUnspecifiedError.IsSuccess())
}

func TestProtocolVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    ProtocolVersion
		name    string
		wantErr bool
	}{
		{"3.1", ProtocolMQTT31, "MQIsdp", false},
		{"3.1.1", ProtocolMQTT311, "MQTT", false},
		{"", ProtocolMQTT311, "MQTT", false},
		{"5", 0, "", true},
		{"5.0", 0, "", true},
		{"4.0", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseProtocolVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.name, v.Name())
		})
	}

	_, err := ParseProtocolVersion("5")
	assert.ErrorIs(t, err, ErrUnsupportedProtocolVersion)

	assert.Equal(t, "3.1.1", ProtocolMQTT311.String())
	assert.Equal(t, "level 9", ProtocolVersion(9).String())
}
