package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by fanbridge.
const (
	MeasurementFanState = "fan_state"
)

// FanSample is one observation of the fan controller.
type FanSample struct {
	DeviceID    string
	Mode        string
	Control     string
	Threshold   float64
	Temperature float64
	Humidity    float64

	// Source is the path that produced the change ("mqtt" or "command").
	Source string

	// Tracked marks device-reported mode, control or threshold changes.
	Tracked bool
}

// WriteFanState records a fan sample. The write is non-blocking; points are
// batched and sent asynchronously.
//
// Tags carry the low-cardinality identifiers (device, source, mode,
// control); the numeric readings and an on/off flag are fields so they can
// be graphed directly.
func (c *Client) WriteFanState(sample FanSample, at time.Time) {
	if !c.IsConnected() {
		return
	}

	running := 0
	if sample.Control == "on" {
		running = 1
	}

	point := write.NewPoint(
		MeasurementFanState,
		map[string]string{
			"device_id": sample.DeviceID,
			"source":    sample.Source,
			"mode":      sample.Mode,
			"control":   sample.Control,
		},
		map[string]interface{}{
			"threshold":   sample.Threshold,
			"temperature": sample.Temperature,
			"humidity":    sample.Humidity,
			"running":     running,
			"tracked":     sample.Tracked,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}
