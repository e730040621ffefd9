// Package mqttclient is an MQTT 3.1/3.1.1 client protocol engine.
//
// It turns a stream of decoded control packets into acknowledged message
// delivery under QoS 0, 1 and 2, with session replay after reconnects and
// topic based dispatch to handlers.
//
// # Features
//
//   - QoS 0, 1, 2 publish flows with per-message retransmission timers
//   - Topic matching with wildcard support (+, #); $-prefixed topics never
//     match a leading wildcard
//   - Coalesced subscriptions: handlers added for a filter still waiting for
//     SUBACK share one SUBSCRIBE
//   - One-shot subscriptions (Once)
//   - Persistent sessions: pending publishes are resent with DUP set and
//     pending unsubscribes are sent again after Reconnect
//   - Transport: TCP, WebSocket, Unix sockets, HTTP CONNECT and SOCKS5 proxies
//
// # Client
//
// Connect is asynchronous; DialContext blocks until CONNACK:
//
//	client, err := mqttclient.DialContext(ctx, "tcp://localhost:1883",
//	    mqttclient.WithClientID("sensor-gw"),
//	    mqttclient.WithKeepAlive(30),
//	)
//	defer client.DisconnectAndClose()
//
// Subscriptions return a handle for Off:
//
//	sub := client.On("sensors/+", mqttclient.QoS1,
//	    mqttclient.MessageHandlerFunc(func(topic string, payload []byte, _ time.Time) {
//	        fmt.Println(topic, string(payload))
//	    }),
//	    func(err error) {
//	        if err != nil {
//	            log.Println("subscribe:", err)
//	        }
//	    })
//
//	client.Off("sensors/+", sub)
//
// Publish reports the outcome once the final acknowledgment arrived:
//
//	client.Publish(&mqttclient.Message{
//	    Topic:   "sensors/1",
//	    Payload: []byte("hello"),
//	    QoS:     mqttclient.QoS2,
//	}, func(err error) {
//	    if errors.Is(err, mqttclient.ErrRateLimited) {
//	        // the server answered PUBREC with quota exceeded
//	    }
//	})
//
// # Callbacks
//
// Every AckFunc and ConnectFunc is called exactly once. Callbacks run on the
// goroutine that resolved the operation, usually the connection reader, and
// must not block.
//
// # Connection loss
//
// With a clean session every pending operation fails with
// ErrConnectionClosed. With WithCleanSession(false) pending state is kept,
// timers are stopped, and the next successful Reconnect replays it.
//
// # Configuration
//
// Options can be loaded from YAML with LoadConfig; MQTTC_* environment
// variables override the file.
package mqttclient
