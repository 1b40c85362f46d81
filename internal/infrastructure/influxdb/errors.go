package influxdb

import "errors"

// Sentinel errors for the telemetry sink. Check with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "no sink", not as a failure.
	ErrDisabled = errors.New("influxdb: telemetry sink disabled")

	// ErrConnectionFailed wraps ping and health failures at startup.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps errors delivered to the SetOnError callback.
	// Fan samples are written in batches, so failures arrive asynchronously.
	ErrWriteFailed = errors.New("influxdb: fan sample write failed")
)
