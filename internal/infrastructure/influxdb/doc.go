// Package influxdb provides the optional InfluxDB telemetry sink for fanbridge.
//
// It wraps the official influxdb-client-go v2 library. Every state change of
// the fan controller, including temperature and humidity readings that do not
// reach the status history, can be written as a fan_state point.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteFanState(influxdb.FanSample{DeviceID: "esp32", Mode: "auto"}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, so WriteFanState
// may be called while holding other locks.
//
// # Error Handling
//
// Write errors are delivered asynchronously via SetOnError.
// Connection and health check errors are returned directly.
package influxdb
