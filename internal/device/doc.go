// Package device owns the in-memory state of the fan controller.
//
// Two writers reach the same aggregate: inbound MQTT messages from the
// ESP32 (ApplyTransportUpdate) and commands issued through the HTTP API
// (Gateway, which mirrors each published command with ApplyCommandEcho).
// Payloads are parsed first; the compare, assign and notify steps then run
// in one critical section, so a racing transport update and command can
// never lose each other's writes.
//
// # Change detection
//
//	┌──────────────┐   ┌───────────────┐   ┌──────────────────┐
//	│ MQTT ingest  │──▶│               │──▶│ history.Writer   │ (tracked only)
//	└──────────────┘   │   Aggregate   │   ├──────────────────┤
//	┌──────────────┐   │  (mutex, diff)│──▶│ websocket hub    │
//	│ Gateway      │──▶│               │──▶│ telemetry sink   │
//	└──────────────┘   └───────────────┘   └──────────────────┘
//
// Mode, control and threshold are tracked fields: a device-reported change
// to any of them makes the resulting ChangeEvent Tracked and produces a
// history row. The Gateway's optimistic mirror updates the same fields and
// notifies listeners, but its events are never Tracked; only the device's
// own reports reach the history. Temperature and humidity are telemetry:
// they update the aggregate and notify listeners but never mark an event
// Tracked on their own. The latest readings ride along in the snapshot of
// the next tracked transition.
//
// # Usage
//
//	agg := device.NewAggregate()
//	agg.SetLogger(log)
//	agg.AddListener(historyWriter)
//
//	gw := device.NewGateway(agg, mqttClient, byte(cfg.MQTT.QoS))
//	mode, err := gw.SetMode(ctx, "manual")
package device
