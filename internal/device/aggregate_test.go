package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// eventRecorder collects change events.
type eventRecorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *eventRecorder) StateChanged(ev ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) tracked() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ChangeEvent
	for _, ev := range r.events {
		if ev.Tracked {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) all() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func newTestAggregate(t *testing.T) (*Aggregate, *eventRecorder) {
	t.Helper()
	agg := NewAggregate()
	rec := &eventRecorder{}
	agg.AddListener(rec)
	return agg, rec
}

func TestNewAggregate_Defaults(t *testing.T) {
	agg := NewAggregate()
	want := State{Mode: ModeAuto, Control: ControlOff, Threshold: 25}
	if got := agg.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestApplyTransportUpdate_ScalarTopics(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    func(State) State
	}{
		{
			name:    "mode",
			topic:   mqtt.TopicMode,
			payload: "manual",
			want:    func(s State) State { s.Mode = ModeManual; return s },
		},
		{
			name:    "mode with trailing newline",
			topic:   mqtt.TopicMode,
			payload: "manual\n",
			want:    func(s State) State { s.Mode = ModeManual; return s },
		},
		{
			name:    "control",
			topic:   mqtt.TopicControl,
			payload: "on",
			want:    func(s State) State { s.Control = ControlOn; return s },
		},
		{
			name:    "threshold",
			topic:   mqtt.TopicThreshold,
			payload: "28.5",
			want:    func(s State) State { s.Threshold = 28.5; return s },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, rec := newTestAggregate(t)

			if err := agg.ApplyTransportUpdate(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("ApplyTransportUpdate() error = %v", err)
			}

			want := tt.want(DefaultState())
			if got := agg.Snapshot(); got != want {
				t.Errorf("Snapshot() = %+v, want %+v", got, want)
			}
			tracked := rec.tracked()
			if len(tracked) != 1 {
				t.Fatalf("tracked events = %d, want 1", len(tracked))
			}
			if tracked[0].Source != SourceMQTT || tracked[0].Topic != tt.topic {
				t.Errorf("event source/topic = %s/%s", tracked[0].Source, tracked[0].Topic)
			}
			if tracked[0].Previous != DefaultState() {
				t.Errorf("event Previous = %+v, want defaults", tracked[0].Previous)
			}
		})
	}
}

func TestApplyTransportUpdate_UnchangedValueIsSilent(t *testing.T) {
	agg, rec := newTestAggregate(t)

	// Defaults already hold these values.
	for topic, payload := range map[string]string{
		mqtt.TopicMode:      "auto",
		mqtt.TopicControl:   "off",
		mqtt.TopicThreshold: "25",
		mqtt.TopicUpdate:    `{"mode":"auto","state":"off","threshold":25}`,
	} {
		if err := agg.ApplyTransportUpdate(topic, []byte(payload)); err != nil {
			t.Fatalf("ApplyTransportUpdate(%s) error = %v", topic, err)
		}
	}

	if n := len(rec.all()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestApplyTransportUpdate_StructuredUpdate(t *testing.T) {
	agg, rec := newTestAggregate(t)

	payload := `{"mode":"manual","state":"on","threshold":30,"temperature":31.2,"humidity":64}`
	if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(payload)); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}

	want := State{Mode: ModeManual, Control: ControlOn, Threshold: 30, Temperature: 31.2, Humidity: 64}
	if got := agg.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 for a single message", len(events))
	}
	if !events[0].Tracked || events[0].Snapshot != want {
		t.Errorf("event = %+v", events[0])
	}
}

func TestApplyTransportUpdate_DuplicateUpdateRecordedOnce(t *testing.T) {
	agg, rec := newTestAggregate(t)
	payload := []byte(`{"mode":"manual","state":"on","threshold":27}`)

	for i := 0; i < 2; i++ {
		if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, payload); err != nil {
			t.Fatalf("ApplyTransportUpdate() #%d error = %v", i, err)
		}
	}

	if n := len(rec.tracked()); n != 1 {
		t.Errorf("tracked events = %d, want 1", n)
	}
}

func TestApplyTransportUpdate_TelemetryOnlyIsNotTracked(t *testing.T) {
	agg, rec := newTestAggregate(t)

	if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"temperature":29.4,"humidity":70}`)); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}

	if n := len(rec.tracked()); n != 0 {
		t.Errorf("tracked events = %d, want 0", n)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("events = %d, want 1 untracked", n)
	}
	got := agg.Snapshot()
	if got.Temperature != 29.4 || got.Humidity != 70 {
		t.Errorf("telemetry not applied: %+v", got)
	}
}

func TestApplyTransportUpdate_TelemetryRidesAlong(t *testing.T) {
	agg, rec := newTestAggregate(t)

	_ = agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"temperature":33,"humidity":55}`))
	_ = agg.ApplyTransportUpdate(mqtt.TopicControl, []byte("on"))

	tracked := rec.tracked()
	if len(tracked) != 1 {
		t.Fatalf("tracked events = %d, want 1", len(tracked))
	}
	snap := tracked[0].Snapshot
	if snap.Temperature != 33 || snap.Humidity != 55 || snap.Control != ControlOn {
		t.Errorf("tracked snapshot = %+v, want latest telemetry with control on", snap)
	}
}

func TestApplyTransportUpdate_PartialUpdateKeepsOtherFields(t *testing.T) {
	agg, _ := newTestAggregate(t)

	_ = agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"mode":"manual","temperature":20}`))
	_ = agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"humidity":40}`))

	want := State{Mode: ModeManual, Control: ControlOff, Threshold: 25, Temperature: 20, Humidity: 40}
	if got := agg.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestApplyTransportUpdate_ZeroThresholdIsApplied(t *testing.T) {
	agg, rec := newTestAggregate(t)

	if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"threshold":0}`)); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}
	if got := agg.Snapshot().Threshold; got != 0 {
		t.Errorf("Threshold = %v, want 0", got)
	}
	if n := len(rec.tracked()); n != 1 {
		t.Errorf("tracked events = %d, want 1", n)
	}
}

func TestApplyTransportUpdate_NumericStringsInUpdate(t *testing.T) {
	agg, _ := newTestAggregate(t)

	if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"threshold":"26.5","temperature":"30"}`)); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}
	got := agg.Snapshot()
	if got.Threshold != 26.5 || got.Temperature != 30 {
		t.Errorf("Snapshot() = %+v", got)
	}
}

func TestApplyTransportUpdate_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{name: "invalid mode", topic: mqtt.TopicMode, payload: "turbo"},
		{name: "invalid control", topic: mqtt.TopicControl, payload: "1"},
		{name: "non-numeric threshold", topic: mqtt.TopicThreshold, payload: "abc"},
		{name: "hex float threshold", topic: mqtt.TopicThreshold, payload: "0x1Ep0"},
		{name: "NaN threshold", topic: mqtt.TopicThreshold, payload: "NaN"},
		{name: "infinite threshold", topic: mqtt.TopicThreshold, payload: "+Inf"},
		{name: "empty threshold", topic: mqtt.TopicThreshold, payload: ""},
		{name: "malformed JSON", topic: mqtt.TopicUpdate, payload: `{"mode":`},
		{name: "not an object", topic: mqtt.TopicUpdate, payload: `[1,2]`},
		{name: "wrong type", topic: mqtt.TopicUpdate, payload: `{"state":true}`},
		{name: "bad field poisons whole update", topic: mqtt.TopicUpdate, payload: `{"mode":"manual","threshold":"abc"}`},
		{name: "overflowing threshold", topic: mqtt.TopicUpdate, payload: `{"threshold":1e400}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, rec := newTestAggregate(t)

			err := agg.ApplyTransportUpdate(tt.topic, []byte(tt.payload))
			if !errors.Is(err, ErrParse) {
				t.Errorf("ApplyTransportUpdate() error = %v, want ErrParse", err)
			}
			if got := agg.Snapshot(); got != DefaultState() {
				t.Errorf("Snapshot() = %+v, want unchanged defaults", got)
			}
			if n := len(rec.all()); n != 0 {
				t.Errorf("events = %d, want 0", n)
			}
		})
	}
}

func TestApplyTransportUpdate_UnknownTopicIgnored(t *testing.T) {
	agg, rec := newTestAggregate(t)

	if err := agg.ApplyTransportUpdate("fan/speed", []byte("3")); err != nil {
		t.Errorf("ApplyTransportUpdate() error = %v, want nil", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestApplyCommandEcho(t *testing.T) {
	agg, rec := newTestAggregate(t)

	if err := agg.ApplyCommandEcho(FieldControl, "on"); err != nil {
		t.Fatalf("ApplyCommandEcho() error = %v", err)
	}
	// Device confirms the same value.
	if err := agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"state":"on","temperature":30}`)); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (mirror, then telemetry)", len(events))
	}
	if events[0].Source != SourceCommand || events[0].Topic != mqtt.TopicControl {
		t.Errorf("event source/topic = %s/%s, want command/fan/control", events[0].Source, events[0].Topic)
	}
	if events[0].Snapshot.Control != ControlOn {
		t.Errorf("mirror snapshot control = %q, want on", events[0].Snapshot.Control)
	}
	// Neither the mirror nor the matching device echo is a tracked transition.
	if n := len(rec.tracked()); n != 0 {
		t.Errorf("tracked events = %d, want 0", n)
	}

	if err := agg.ApplyCommandEcho(Field("speed"), "3"); !errors.Is(err, ErrValidation) {
		t.Errorf("ApplyCommandEcho(unknown) error = %v, want ErrValidation", err)
	}
}

func TestApplyCommandEcho_DeviceChangeAfterMirrorIsTracked(t *testing.T) {
	agg, rec := newTestAggregate(t)

	_ = agg.ApplyCommandEcho(FieldMode, "manual")
	// The device overrides the command.
	if err := agg.ApplyTransportUpdate(mqtt.TopicMode, []byte("auto")); err != nil {
		t.Fatalf("ApplyTransportUpdate() error = %v", err)
	}

	tracked := rec.tracked()
	if len(tracked) != 1 {
		t.Fatalf("tracked events = %d, want 1", len(tracked))
	}
	if tracked[0].Source != SourceMQTT || tracked[0].Previous.Mode != ModeManual || tracked[0].Snapshot.Mode != ModeAuto {
		t.Errorf("tracked event = %+v", tracked[0])
	}
}

func TestLastWriteWinsPerField(t *testing.T) {
	agg, _ := newTestAggregate(t)

	_ = agg.ApplyTransportUpdate(mqtt.TopicThreshold, []byte("20"))
	_ = agg.ApplyCommandEcho(FieldThreshold, "22")
	_ = agg.ApplyTransportUpdate(mqtt.TopicMode, []byte("manual"))
	_ = agg.ApplyTransportUpdate(mqtt.TopicUpdate, []byte(`{"threshold":24,"humidity":50}`))
	_ = agg.ApplyCommandEcho(FieldMode, "auto")

	want := State{Mode: ModeAuto, Control: ControlOff, Threshold: 24, Humidity: 50}
	if got := agg.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestWithSnapshot_HoldsBackConcurrentChanges(t *testing.T) {
	agg, rec := newTestAggregate(t)

	applied := make(chan struct{})
	var seen State
	agg.WithSnapshot(func(st State) {
		seen = st
		go func() {
			_ = agg.ApplyTransportUpdate(mqtt.TopicControl, []byte("on"))
			close(applied)
		}()

		select {
		case <-applied:
			t.Error("change committed while WithSnapshot callback was running")
		case <-time.After(50 * time.Millisecond):
		}
		if n := len(rec.all()); n != 0 {
			t.Errorf("events during callback = %d, want 0", n)
		}
	})

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("change not committed after WithSnapshot returned")
	}
	if seen != DefaultState() {
		t.Errorf("callback state = %+v, want defaults", seen)
	}
	if events := rec.all(); len(events) != 1 || events[0].Previous != seen {
		t.Errorf("events = %+v, want one change from the callback state", events)
	}
}

func TestAggregate_ConcurrentWritersKeepEventsConsistent(t *testing.T) {
	agg, rec := newTestAggregate(t)

	const writers = 8
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v := fmt.Sprintf("%d", (w*iterations+i)%40)
				if w%2 == 0 {
					_ = agg.ApplyTransportUpdate(mqtt.TopicThreshold, []byte(v))
				} else {
					_ = agg.ApplyCommandEcho(FieldThreshold, v)
				}
				_ = agg.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	// Each event's Previous must be the prior event's Snapshot: no lost updates.
	events := rec.all()
	prev := DefaultState()
	for i, ev := range events {
		if ev.Previous != prev {
			t.Fatalf("event %d Previous = %+v, want %+v", i, ev.Previous, prev)
		}
		if ev.Snapshot == ev.Previous {
			t.Fatalf("event %d has no change", i)
		}
		prev = ev.Snapshot
	}
	if got := agg.Snapshot(); got != prev {
		t.Errorf("final Snapshot() = %+v, want last event %+v", got, prev)
	}
}

func TestHandleMessage_AbsorbsErrors(t *testing.T) {
	agg, _ := newTestAggregate(t)

	if err := agg.HandleMessage(mqtt.TopicThreshold, []byte("NaN")); err != nil {
		t.Errorf("HandleMessage() error = %v, want nil", err)
	}
}

type fakeSubscriber struct {
	topics  []string
	failOn  string
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if topic == f.failOn {
		return errors.New("denied")
	}
	f.topics = append(f.topics, topic)
	f.handler = handler
	return nil
}

func TestSubscribe(t *testing.T) {
	agg, _ := newTestAggregate(t)
	sub := &fakeSubscriber{}

	if err := agg.Subscribe(sub, 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(sub.topics) != 4 {
		t.Errorf("subscribed topics = %v, want 4", sub.topics)
	}

	_ = sub.handler(mqtt.TopicControl, []byte("on"))
	if got := agg.Snapshot().Control; got != ControlOn {
		t.Errorf("Control = %q after delivered message, want on", got)
	}

	failing := &fakeSubscriber{failOn: mqtt.TopicThreshold}
	if err := agg.Subscribe(failing, 1); err == nil {
		t.Error("Subscribe() error = nil, want failure")
	}
}
