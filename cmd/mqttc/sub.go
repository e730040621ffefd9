package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttclient"
)

var (
	subTopics    []string
	subQoS       int
	subCount     int
	subOnce      bool
	subTimestamp bool
)

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe to topics",
	Long: `Subscribe to one or more topic filters and print incoming messages.

Examples:
  mqttc sub -t "sensors/#"
  mqttc sub -t "sensors/+/temp" -t "alerts/#" -q 1
  mqttc sub -t "config/device" --once`,
	RunE: runSub,
}

func init() {
	subCmd.Flags().StringArrayVarP(&subTopics, "topic", "t", nil, "topic filter (can be repeated)")
	subCmd.Flags().IntVarP(&subQoS, "qos", "q", 0, "QoS level (0, 1, 2)")
	subCmd.Flags().IntVarP(&subCount, "count", "n", 0, "exit after N messages (0 = unlimited)")
	subCmd.Flags().BoolVar(&subOnce, "once", false, "receive one message per filter, then unsubscribe")
	subCmd.Flags().BoolVar(&subTimestamp, "timestamp", false, "print receive time")

	_ = subCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(subCmd)
}

func runSub(_ *cobra.Command, _ []string) error {
	qos, err := parseQoS(subQoS)
	if err != nil {
		return err
	}
	for _, t := range subTopics {
		if err := mqttclient.ValidateTopicFilter(t); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	var (
		received  atomic.Int64
		remaining atomic.Int64
		mu        sync.Mutex
		done      = make(chan struct{})
		doneOnce  sync.Once
	)
	finish := func() { doneOnce.Do(func() { close(done) }) }
	remaining.Store(int64(len(subTopics)))

	handler := mqttclient.MessageHandlerFunc(func(topic string, payload []byte, at time.Time) {
		mu.Lock()
		printMessage(topic, payload, at)
		mu.Unlock()

		n := received.Add(1)
		if subCount > 0 && n >= int64(subCount) {
			finish()
		}
		if subOnce && remaining.Add(-1) == 0 {
			finish()
		}
	})

	failed := make(chan error, len(subTopics))
	for _, filter := range subTopics {
		ack := func(err error) {
			if err != nil {
				failed <- fmt.Errorf("subscribe %s: %w", filter, err)
			}
		}
		if subOnce {
			s.client.Once(filter, qos, handler, ack)
		} else {
			s.client.On(filter, qos, handler, ack)
		}
	}

	select {
	case <-done:
		return nil
	case err := <-failed:
		return err
	case <-ctx.Done():
		return nil
	}
}

func printMessage(topic string, payload []byte, at time.Time) {
	if subTimestamp {
		fmt.Printf("%s ", color.GreenString(at.Format(time.RFC3339Nano)))
	}
	fmt.Printf("%s %s\n", color.CyanString(topic), string(payload))
}
