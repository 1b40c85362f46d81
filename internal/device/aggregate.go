package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the aggregate and gateway.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source identifies which path produced a change.
type Source string

// Change sources.
const (
	SourceMQTT    Source = "mqtt"
	SourceCommand Source = "command"
)

// ChangeEvent describes one committed change to the aggregate.
type ChangeEvent struct {
	// Snapshot is the state immediately after the change.
	Snapshot State

	// Previous is the state immediately before the change.
	Previous State

	// Tracked is true when the device reported a new mode, control or
	// threshold. Command mirrors are never tracked.
	Tracked bool

	Source Source

	// Topic is the inbound topic, or the command topic for command echoes.
	Topic string
}

// ChangeListener is notified of every committed change.
//
// StateChanged runs inside the aggregate's critical section, in
// registration order, so events arrive in commit order. Implementations
// must not block and must not call back into the Aggregate.
type ChangeListener interface {
	StateChanged(ev ChangeEvent)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(ev ChangeEvent)

// StateChanged calls f(ev).
func (f ChangeListenerFunc) StateChanged(ev ChangeEvent) { f(ev) }

// Aggregate is the single source of truth for the fan controller's state.
//
// All public methods are thread-safe.
type Aggregate struct {
	mu        sync.Mutex
	state     State
	listeners []ChangeListener
	logger    Logger
}

// NewAggregate creates an aggregate holding DefaultState.
func NewAggregate() *Aggregate {
	return &Aggregate{
		state:  DefaultState(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the aggregate.
func (a *Aggregate) SetLogger(logger Logger) {
	a.mu.Lock()
	a.logger = logger
	a.mu.Unlock()
}

// AddListener registers l for all subsequent changes.
func (a *Aggregate) AddListener(l ChangeListener) {
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (a *Aggregate) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// WithSnapshot calls fn with the current state while holding the commit
// lock. No change event is delivered to listeners until fn returns, so a
// listener registered inside fn sees every change after the state it was
// given. fn must not block or call back into the Aggregate.
func (a *Aggregate) WithSnapshot(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.state)
}

// patch is a parsed partial update. Nil fields are absent.
type patch struct {
	mode        *Mode
	control     *Control
	threshold   *float64
	temperature *float64
	humidity    *float64
}

// updateMessage is the structured payload on fan/update. The firmware names
// the control field "state". Numbers may arrive as JSON numbers or as
// numeric strings.
type updateMessage struct {
	Mode        *string      `json:"mode"`
	State       *string      `json:"state"`
	Threshold   *json.Number `json:"threshold"`
	Temperature *json.Number `json:"temperature"`
	Humidity    *json.Number `json:"humidity"`
}

// ApplyTransportUpdate applies one inbound MQTT message.
//
// The payload is fully parsed before anything is assigned, so a rejected
// message (wrapping ErrParse) leaves the aggregate unchanged. Messages on
// unknown topics are logged and ignored.
func (a *Aggregate) ApplyTransportUpdate(topic string, payload []byte) error {
	var p patch

	switch topic {
	case mqtt.TopicMode:
		m, err := ParseMode(strings.TrimSpace(string(payload)))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrParse, topic, err)
		}
		p.mode = &m

	case mqtt.TopicControl:
		c, err := ParseControl(strings.TrimSpace(string(payload)))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrParse, topic, err)
		}
		p.control = &c

	case mqtt.TopicThreshold:
		v, err := ParseThreshold(string(payload))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrParse, topic, err)
		}
		p.threshold = &v

	case mqtt.TopicUpdate:
		parsed, err := parseUpdate(payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrParse, topic, err)
		}
		p = parsed

	default:
		a.getLogger().Warn("ignoring message on unhandled topic", "topic", topic)
		return nil
	}

	a.commit(p, SourceMQTT, topic)
	return nil
}

// parseUpdate decodes and validates a fan/update payload.
func parseUpdate(payload []byte) (patch, error) {
	var msg updateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return patch{}, fmt.Errorf("decoding update: %w", err)
	}

	var p patch
	if msg.Mode != nil {
		m, err := ParseMode(*msg.Mode)
		if err != nil {
			return patch{}, err
		}
		p.mode = &m
	}
	if msg.State != nil {
		c, err := ParseControl(*msg.State)
		if err != nil {
			return patch{}, err
		}
		p.control = &c
	}
	if msg.Threshold != nil {
		v, err := ParseThreshold(msg.Threshold.String())
		if err != nil {
			return patch{}, err
		}
		p.threshold = &v
	}
	if msg.Temperature != nil {
		v, err := parseReading("temperature", *msg.Temperature)
		if err != nil {
			return patch{}, err
		}
		p.temperature = &v
	}
	if msg.Humidity != nil {
		v, err := parseReading("humidity", *msg.Humidity)
		if err != nil {
			return patch{}, err
		}
		p.humidity = &v
	}
	return p, nil
}

func parseReading(name string, n json.Number) (float64, error) {
	v, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", name, n.String())
	}
	return v, nil
}

// ApplyCommandEcho mirrors a successfully published command into the
// aggregate so reads reflect it immediately. The resulting event is never
// Tracked, and a later device echo of the same value is not a change.
func (a *Aggregate) ApplyCommandEcho(field Field, value string) error {
	var (
		p     patch
		topic string
	)

	switch field {
	case FieldMode:
		m, err := ParseMode(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		p.mode, topic = &m, mqtt.TopicMode

	case FieldControl:
		c, err := ParseControl(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		p.control, topic = &c, mqtt.TopicControl

	case FieldThreshold:
		v, err := ParseThreshold(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		p.threshold, topic = &v, mqtt.TopicThreshold

	default:
		return fmt.Errorf("%w: unknown field %q", ErrValidation, field)
	}

	a.commit(p, SourceCommand, topic)
	return nil
}

// commit is the critical section shared by every mutator: compare each
// present field against the current value, assign on difference, and
// notify listeners with snapshots taken under the lock.
func (a *Aggregate) commit(p patch, source Source, topic string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.state
	next := prev
	fieldChanged := false

	if p.mode != nil && *p.mode != next.Mode {
		next.Mode = *p.mode
		fieldChanged = true
	}
	if p.control != nil && *p.control != next.Control {
		next.Control = *p.control
		fieldChanged = true
	}
	if p.threshold != nil && *p.threshold != next.Threshold {
		next.Threshold = *p.threshold
		fieldChanged = true
	}
	if p.temperature != nil {
		next.Temperature = *p.temperature
	}
	if p.humidity != nil {
		next.Humidity = *p.humidity
	}

	if next == prev {
		a.logger.Debug("fan state unchanged", "topic", topic, "source", source)
		return
	}

	a.state = next
	tracked := fieldChanged && source == SourceMQTT
	a.logger.Debug("fan state updated",
		"topic", topic,
		"source", source,
		"tracked", tracked,
		"mode", next.Mode,
		"control", next.Control,
		"threshold", next.Threshold,
	)

	ev := ChangeEvent{
		Snapshot: next,
		Previous: prev,
		Tracked:  tracked,
		Source:   source,
		Topic:    topic,
	}
	for _, l := range a.listeners {
		l.StateChanged(ev)
	}
}

func (a *Aggregate) getLogger() Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logger
}
