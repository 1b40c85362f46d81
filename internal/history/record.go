package history

import (
	"context"
	"time"

	"github.com/nerrad567/fanbridge/internal/device"
)

// Record is one immutable row of the status history.
type Record struct {
	// ID is an opaque identifier assigned on insert.
	ID string `json:"id"`

	DeviceID string `json:"device_id"`

	// Status is the control state ("on"/"off") at the time of the change.
	Status      string  `json:"status"`
	Mode        string  `json:"mode"`
	Threshold   float64 `json:"threshold"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`

	// Topic is the inbound topic that carried the transition
	// (fan/mode, fan/control, fan/threshold or fan/update).
	Topic string `json:"topic"`

	// CreatedAt is assigned by the store (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// RecordFromEvent builds the row for a change event's snapshot.
func RecordFromEvent(deviceID string, ev device.ChangeEvent) Record {
	s := ev.Snapshot
	return Record{
		DeviceID:    deviceID,
		Status:      string(s.Control),
		Mode:        string(s.Mode),
		Threshold:   s.Threshold,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Topic:       ev.Topic,
	}
}

// Repository stores and retrieves status history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record appends rec. ID is generated when empty; CreatedAt is
	// always assigned by the store.
	Record(ctx context.Context, rec Record) error

	// List returns rows newest first. limit <= 0 returns every row.
	List(ctx context.Context, limit int) ([]Record, error)
}
