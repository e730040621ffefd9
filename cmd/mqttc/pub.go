package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttclient"
)

var (
	pubTopic    string
	pubMessage  string
	pubFile     string
	pubQoS      int
	pubRetain   bool
	pubCount    int
	pubInterval time.Duration
	pubTimeout  time.Duration
)

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish a message",
	Long: `Publish a message to a topic.

The payload comes from --message, --file, or stdin when neither is set.

Examples:
  mqttc pub -t "sensors/1" -m "hello"
  mqttc pub -t "sensors/1" -m "hello" -q 2 --retain
  echo "payload" | mqttc pub -t "sensors/1"
  mqttc pub -t "ticks" -m "tick" -n 10 --interval 1s`,
	RunE: runPub,
}

func init() {
	pubCmd.Flags().StringVarP(&pubTopic, "topic", "t", "", "topic to publish to (required)")
	pubCmd.Flags().StringVarP(&pubMessage, "message", "m", "", "message payload")
	pubCmd.Flags().StringVarP(&pubFile, "file", "f", "", "read payload from file")
	pubCmd.Flags().IntVarP(&pubQoS, "qos", "q", 0, "QoS level (0, 1, 2)")
	pubCmd.Flags().BoolVarP(&pubRetain, "retain", "r", false, "retain message")
	pubCmd.Flags().IntVarP(&pubCount, "count", "n", 1, "number of messages to publish")
	pubCmd.Flags().DurationVar(&pubInterval, "interval", 0, "interval between messages")
	pubCmd.Flags().DurationVar(&pubTimeout, "timeout", 30*time.Second, "acknowledgment timeout per message")

	_ = pubCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(pubCmd)
}

func runPub(_ *cobra.Command, _ []string) error {
	qos, err := parseQoS(pubQoS)
	if err != nil {
		return err
	}
	if err := mqttclient.ValidateTopicName(pubTopic); err != nil {
		return err
	}

	payload, err := getPayload()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	for i := 0; i < pubCount; i++ {
		if i > 0 && pubInterval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pubInterval):
			}
		}

		msg := &mqttclient.Message{
			Topic:   pubTopic,
			Payload: payload,
			QoS:     qos,
			Retain:  pubRetain,
		}
		if err := publishAndWait(ctx, s.client, msg); err != nil {
			return fmt.Errorf("publish %d/%d: %w", i+1, pubCount, err)
		}
	}

	return nil
}

// publishAndWait blocks until the message was written (QoS 0) or fully
// acknowledged (QoS 1 and 2).
func publishAndWait(ctx context.Context, client *mqttclient.Client, msg *mqttclient.Message) error {
	done := make(chan error, 1)
	client.Publish(msg, func(err error) {
		done <- err
	})

	timer := time.NewTimer(pubTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("no acknowledgment within %s", pubTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func getPayload() ([]byte, error) {
	if pubMessage != "" {
		return []byte(pubMessage), nil
	}

	if pubFile != "" {
		data, err := os.ReadFile(pubFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return data, nil
	}

	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no payload: use --message, --file, or stdin")
	}

	return io.ReadAll(os.Stdin)
}
