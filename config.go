package mqttclient

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the client options. It is loaded from YAML and
// can be overridden by MQTTC_* environment variables.
type Config struct {
	Broker         string          `yaml:"broker"`
	ClientID       string          `yaml:"client_id"`
	Username       string          `yaml:"username"`
	Password       string          `yaml:"password"`
	Protocol       string          `yaml:"protocol"`
	KeepAlive      uint16          `yaml:"keep_alive"`
	CleanSession   *bool           `yaml:"clean_session"`
	ConnectTimeout time.Duration   `yaml:"connect_timeout"`
	MaxInflight    int             `yaml:"max_inflight"`
	LogLevel       string          `yaml:"log_level"`
	Will           *WillConfig     `yaml:"will"`
	Retry          RetryConfig     `yaml:"retry"`
	Replay         ReplayConfig    `yaml:"replay"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	Handlers       HandlersConfig  `yaml:"handlers"`
	Transport      TransportConfig `yaml:"transport"`
}

// WillConfig is the last will message.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// RetryConfig configures retransmission of unacknowledged publishes.
type RetryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ReplayConfig paces the session replay after a reconnect.
type ReplayConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// ReconnectConfig configures automatic reconnection.
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// HandlersConfig moves message handlers onto a worker pool.
type HandlersConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// TransportConfig configures dialing.
type TransportConfig struct {
	DialTimeout time.Duration     `yaml:"dial_timeout"`
	Proxy       string            `yaml:"proxy"`
	Headers     map[string]string `yaml:"headers"`
}

// LoadConfig reads a YAML file, applies environment overrides and
// validates the result. An empty path starts from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig mirrors the defaults of New.
func DefaultConfig() *Config {
	policy := DefaultRetryPolicy()
	return &Config{
		Broker:         "tcp://localhost:1883",
		Protocol:       ProtocolMQTT311.String(),
		KeepAlive:      60,
		ConnectTimeout: 10 * time.Second,
		LogLevel:       LogLevelInfo.String(),
		Retry: RetryConfig{
			Interval:   policy.Interval,
			Multiplier: policy.Multiplier,
			MaxRetries: policy.MaxRetries,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  10,
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTC_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("MQTTC_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MQTTC_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTTC_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MQTTC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MQTTC_PROXY"); v != "" {
		cfg.Transport.Proxy = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if _, err := ParseBrokerAddress(c.Broker); err != nil {
		errs = append(errs, "broker: "+err.Error())
	}
	if _, err := ParseProtocolVersion(c.Protocol); err != nil {
		errs = append(errs, "protocol: "+err.Error())
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, "log_level: "+err.Error())
	}
	if c.Will != nil {
		if err := ValidateTopicName(c.Will.Topic); err != nil {
			errs = append(errs, "will.topic: "+err.Error())
		}
		if c.Will.QoS > QoS2 {
			errs = append(errs, "will.qos must be 0, 1, or 2")
		}
	}
	if c.Retry.Interval < 0 {
		errs = append(errs, "retry.interval must not be negative")
	}
	if c.MaxInflight < 0 {
		errs = append(errs, "max_inflight must not be negative")
	}
	if c.Transport.Proxy != "" {
		if _, err := NewProxyDialer(c.Transport.Proxy, "", ""); err != nil {
			errs = append(errs, "transport.proxy: "+err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Options converts the configuration to client options. The logger, when
// not nil, gets the configured level.
func (c *Config) Options(logger Logger) ([]Option, error) {
	version, err := ParseProtocolVersion(c.Protocol)
	if err != nil {
		return nil, err
	}

	dialer, err := c.Dialer()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithProtocolVersion(version),
		WithKeepAlive(c.KeepAlive),
		WithConnectTimeout(c.ConnectTimeout),
		WithDialer(dialer),
		WithMaxInflight(c.MaxInflight),
		WithRetryPolicy(RetryPolicy{
			Interval:    c.Retry.Interval,
			Multiplier:  c.Retry.Multiplier,
			MaxInterval: c.Retry.MaxInterval,
			MaxRetries:  c.Retry.MaxRetries,
		}),
		WithAutoReconnect(c.Reconnect.Enabled),
		WithMaxReconnects(c.Reconnect.MaxAttempts),
		WithReconnectBackoff(c.Reconnect.InitialDelay),
		WithMaxBackoff(c.Reconnect.MaxDelay),
	}

	if c.ClientID != "" {
		opts = append(opts, WithClientID(c.ClientID))
	}
	if c.Username != "" || c.Password != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.CleanSession != nil {
		opts = append(opts, WithCleanSession(*c.CleanSession))
	}
	if c.Will != nil {
		opts = append(opts, WithWill(c.Will.Topic, []byte(c.Will.Payload), c.Will.Retain, c.Will.QoS))
	}
	if c.Replay.Rate > 0 {
		opts = append(opts, WithReplayRateLimit(c.Replay.Rate, c.Replay.Burst))
	}
	if c.Handlers.Workers > 0 {
		opts = append(opts, WithHandlerWorkers(c.Handlers.Workers, c.Handlers.Queue))
	}

	if logger != nil {
		level, err := ParseLogLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
		opts = append(opts, WithLogger(logger))
	}

	return opts, nil
}

// Dialer builds the NetDialer described by the transport section.
func (c *Config) Dialer() (*NetDialer, error) {
	d := &NetDialer{Timeout: c.Transport.DialTimeout}

	if c.Transport.Proxy != "" {
		p, err := NewProxyDialer(c.Transport.Proxy, "", "")
		if err != nil {
			return nil, err
		}
		d.Proxy = p
	}

	if len(c.Transport.Headers) > 0 {
		ws := NewWSDialer()
		ws.Header = make(http.Header, len(c.Transport.Headers))
		for k, v := range c.Transport.Headers {
			ws.Header.Set(k, v)
		}
		d.WebSocket = ws
	}

	return d, nil
}
