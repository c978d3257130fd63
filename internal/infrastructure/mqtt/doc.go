// Package mqtt provides MQTT client connectivity for the automation agent daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The agent daemon uses MQTT as the event bus connecting it to the rest of
// the task assistant. Task lifecycle events arrive on taskai/event/+ and
// agent actions are published to taskai/action/{type} for downstream
// consumers to execute.
//
//	Task Assistant ↔ MQTT Broker ↔ Agent Daemon
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all task lifecycle events
//	err = client.Subscribe(mqtt.Topics{}.AllTaskEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.HandleEvent(topic, payload)
//	    })
//
//	// Publish an agent action
//	topic := mqtt.Topics{}.ActionCommand("send_reminder")
//	client.Publish(topic, []byte(`{"task_id":"t-42"}`), 1, false)
package mqtt
