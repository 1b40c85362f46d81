package main

import (
	"time"

	"github.com/nerrad567/fanbridge/internal/device"
	"github.com/nerrad567/fanbridge/internal/infrastructure/influxdb"
)

// fanStateWriter is the part of *influxdb.Client the telemetry listener uses.
type fanStateWriter interface {
	WriteFanState(sample influxdb.FanSample, at time.Time)
}

// telemetryListener forwards every state change to InfluxDB, including
// telemetry-only changes that never reach the history table.
func telemetryListener(w fanStateWriter, deviceID string) device.ChangeListener {
	return device.ChangeListenerFunc(func(ev device.ChangeEvent) {
		w.WriteFanState(sampleFromEvent(deviceID, ev), time.Now())
	})
}

func sampleFromEvent(deviceID string, ev device.ChangeEvent) influxdb.FanSample {
	s := ev.Snapshot
	return influxdb.FanSample{
		DeviceID:    deviceID,
		Mode:        string(s.Mode),
		Control:     string(s.Control),
		Threshold:   s.Threshold,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Source:      string(ev.Source),
		Tracked:     ev.Tracked,
	}
}
