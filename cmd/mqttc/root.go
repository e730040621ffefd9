package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttclient"
)

var (
	// Global flags
	cfgFile  string
	broker   string
	clientID string
	username string
	password string
	logLevel string
	noColor  bool
	stats    bool
)

var rootCmd = &cobra.Command{
	Use:   "mqttc",
	Short: "MQTT 3.1.1 command-line client",
	Long: `mqttc publishes and subscribes against an MQTT 3.1/3.1.1 broker.

Supported broker addresses:
  - tcp://host:port, mqtt://host:port
  - ws://host:port/path
  - unix:///path/to.sock

Examples:
  # Publish a message with QoS 1
  mqttc pub -t "sensors/1" -m "hello" -q 1

  # Subscribe to a filter
  mqttc sub -t "sensors/#"

  # Use a configuration file
  mqttc --config mqttc.yaml sub -t "alerts/+"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&broker, "broker", "b", "", "broker address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "client ID (generated if empty)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "username for authentication")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "P", "", "password for authentication")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&stats, "stats", false, "print client metrics on exit")
}

// loadConfig merges the config file, MQTTC_* variables and flags.
func loadConfig() (*mqttclient.Config, error) {
	cfg, err := mqttclient.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if broker != "" {
		cfg.Broker = broker
	}
	if clientID != "" {
		cfg.ClientID = clientID
	}
	if username != "" {
		cfg.Username = username
	}
	if password != "" {
		cfg.Password = password
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a connected client plus the sinks the CLI reads on exit.
type session struct {
	client  *mqttclient.Client
	metrics *mqttclient.MemoryMetrics
}

func connect(ctx context.Context, extra ...mqttclient.Option) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newConsoleLogger(os.Stderr, mqttclient.LogLevelInfo)
	opts, err := cfg.Options(logger)
	if err != nil {
		return nil, err
	}

	metrics := mqttclient.NewMemoryMetrics()
	opts = append(opts, mqttclient.WithMetrics(metrics))
	opts = append(opts, extra...)

	client, err := mqttclient.DialContext(ctx, cfg.Broker, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}

	return &session{client: client, metrics: metrics}, nil
}

func (s *session) close() {
	_ = s.client.DisconnectAndClose()

	if !stats {
		return
	}

	snapshot := s.metrics.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.CyanString(k), formatValue(snapshot[k]))
	}
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.6f", v)
}

func parseQoS(qos int) (byte, error) {
	if qos < 0 || qos > 2 {
		return 0, fmt.Errorf("invalid QoS %d: must be 0, 1, or 2", qos)
	}
	return byte(qos), nil
}
