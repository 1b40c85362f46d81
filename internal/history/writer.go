package history

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/fanbridge/internal/device"
)

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats counts writer outcomes since start.
type Stats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Writer persists tracked change events asynchronously.
//
// StateChanged never blocks: it enqueues a record on a bounded channel or
// drops it when the queue is full. Run drains the queue into the
// repository. Failed inserts are logged and never retried.
type Writer struct {
	repo     Repository
	deviceID string
	queue    chan Record
	logger   Logger

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter creates a writer with room for queueSize pending records.
func NewWriter(repo Repository, deviceID string, queueSize int) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Writer{
		repo:     repo,
		deviceID: deviceID,
		queue:    make(chan Record, queueSize),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the writer. Call before Run.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// StateChanged implements device.ChangeListener.
func (w *Writer) StateChanged(ev device.ChangeEvent) {
	if !ev.Tracked {
		return
	}

	rec := RecordFromEvent(w.deviceID, ev)
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
		w.logger.Error("dropping status history record",
			"error", ErrQueueFull,
			"mode", rec.Mode,
			"status", rec.Status,
			"threshold", rec.Threshold,
		)
	}
}

// Run inserts queued records until ctx is cancelled, then flushes whatever
// is still queued with a context that ignores the cancellation.
func (w *Writer) Run(ctx context.Context) {
	// An insert already dequeued must not fail because shutdown began.
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			w.drain(writeCtx)
			return
		case rec := <-w.queue:
			w.write(writeCtx, rec)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case rec := <-w.queue:
			w.write(ctx, rec)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, rec Record) {
	if err := w.repo.Record(ctx, rec); err != nil {
		w.failed.Add(1)
		w.logger.Error("failed to save status history",
			"error", err,
			"device_id", rec.DeviceID,
			"mode", rec.Mode,
			"status", rec.Status,
		)
		return
	}
	w.written.Add(1)
	w.logger.Debug("status history saved", "device_id", rec.DeviceID, "topic", rec.Topic)
}

// Stats returns the writer's counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}

// Pending returns the number of queued records.
func (w *Writer) Pending() int {
	return len(w.queue)
}
