// Package mqtt provides MQTT client connectivity for fanbridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with acknowledgement timeouts
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for bridge offline detection
//
// # Architecture
//
// The ESP32 fan controller and fanbridge never talk directly. Both are
// clients of the same broker:
//
//	ESP32 ↔ MQTT Broker ↔ fanbridge ↔ HTTP dashboard
//
// The firmware publishes its state on fan/mode, fan/control, fan/threshold
// and fan/update, and consumes commands on the first three.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.TopicUpdate, 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(mqtt.TopicMode, []byte("manual"), 1, false)
package mqtt
