package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fanbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeToken is a completed paho token.
type fakeToken struct {
	pahomqtt.Token
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records publishes and subscriptions instead of talking to a broker.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	publishErr   error
	subscribeErr error
	connectToken *fakeToken
	timeout      bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: data})
	return &fakeToken{err: f.publishErr, timeout: f.timeout}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr == nil && !f.timeout {
		f.handlers[topic] = callback
	}
	return &fakeToken{err: f.subscribeErr, timeout: f.timeout}
}

func (f *fakePaho) Connect() pahomqtt.Token {
	if f.connectToken != nil {
		return f.connectToken
	}
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

// deliver invokes the registered handler as paho's router would.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) lastPublished() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return published{}
	}
	return f.published[len(f.published)-1]
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

// connectedClient returns a Client wired to a fake paho client.
func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake
	c.setConnected(true)
	return c, fake
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Options
// =============================================================================

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		tls  bool
		want string
	}{
		{name: "plain", tls: false, want: "tcp://127.0.0.1:1883"},
		{name: "tls", tls: true, want: "ssl://127.0.0.1:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Broker.TLS = tt.tls
			if got := brokerURL(cfg); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "fan"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if opts.ClientID != "fanbridge-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "fanbridge-test")
	}
	if opts.Username != "fan" {
		t.Errorf("Username = %q, want %q", opts.Username, "fan")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.Order {
		t.Error("Order = false, want in-order delivery")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if !opts.WillEnabled || opts.WillTopic != "fanbridge/fanbridge-test/status" || !opts.WillRetained {
		t.Errorf("LWT = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestStatusPayload(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(statusPayload("fb", "online", "")), &online); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if online["status"] != "online" || online["client_id"] != "fb" {
		t.Errorf("online payload = %v", online)
	}
	if _, ok := online["reason"]; ok {
		t.Error("online payload should omit reason")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(statusPayload("fb", "offline", "graceful_shutdown")), &offline); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if offline["reason"] != "graceful_shutdown" {
		t.Errorf("reason = %q, want graceful_shutdown", offline["reason"])
	}
	if _, err := time.Parse(time.RFC3339, offline["timestamp"]); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", offline["timestamp"], err)
	}
}

func TestTopics(t *testing.T) {
	inbound := Topics{}.Inbound()
	want := []string{"fan/mode", "fan/control", "fan/threshold", "fan/update"}
	if len(inbound) != len(want) {
		t.Fatalf("Inbound() = %v, want %v", inbound, want)
	}
	for i := range want {
		if inbound[i] != want[i] {
			t.Errorf("Inbound()[%d] = %q, want %q", i, inbound[i], want[i])
		}
	}
	for _, topic := range inbound {
		if strings.HasPrefix(Topics{}.BridgeStatus("x"), topic) {
			t.Errorf("bridge status topic overlaps firmware topic %q", topic)
		}
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	c := newClient(testConfig())
	if c.IsConnected() {
		t.Error("IsConnected() = true on unconnected client")
	}
}

func TestConnectFailureDisconnects(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{timeout: true}},
		{"refused", &fakeToken{err: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakePaho()
			fake.connectToken = tt.token
			c := newClient(testConfig())
			c.client = fake

			if err := c.connect(); !errors.Is(err, ErrConnectionFailed) {
				t.Fatalf("connect() error = %v, want ErrConnectionFailed", err)
			}
			if !fake.disconnected {
				t.Error("Disconnect was not called after failed connect")
			}
			if c.IsConnected() {
				t.Error("IsConnected() = true after failed connect")
			}
		})
	}
}

func TestConnectSuccess(t *testing.T) {
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake

	if err := c.connect(); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if fake.disconnected {
		t.Error("Disconnect called after successful connect")
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after connect")
	}
}

func TestCloseNil(t *testing.T) {
	c := newClient(testConfig())
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClosePublishesOffline(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	last := fake.lastPublished()
	if last.topic != "fanbridge/fanbridge-test/status" || !last.retained {
		t.Errorf("last publish = %q retained=%v, want retained bridge status", last.topic, last.retained)
	}
	if !strings.Contains(string(last.payload), "graceful_shutdown") {
		t.Errorf("payload = %s, want graceful_shutdown reason", last.payload)
	}
	if !fake.disconnected {
		t.Error("Disconnect was not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestReconnectRestoresSubscriptionsAndCallbacks(t *testing.T) {
	c, fake := connectedClient(t)

	var disconnects, connects int
	c.SetOnDisconnect(func(error) { disconnects++ })
	c.SetOnConnect(func() { connects++ })

	if err := c.Subscribe(TopicUpdate, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	c.handleDisconnect(errors.New("link down"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}

	fake.mu.Lock()
	delete(fake.handlers, TopicUpdate)
	fake.mu.Unlock()

	c.handleConnect()

	fake.mu.Lock()
	_, restored := fake.handlers[TopicUpdate]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored after reconnect")
	}
	if disconnects != 1 || connects != 1 {
		t.Errorf("callbacks: disconnects=%d connects=%d, want 1/1", disconnects, connects)
	}
	if last := fake.lastPublished(); !strings.Contains(string(last.payload), `"online"`) {
		t.Errorf("last publish = %s, want online status", last.payload)
	}
}

// =============================================================================
// Publish
// =============================================================================

func TestPublish(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Publish(TopicThreshold, []byte("30"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	last := fake.lastPublished()
	if last.topic != TopicThreshold || string(last.payload) != "30" || last.qos != 1 || last.retained {
		t.Errorf("published %+v", last)
	}
}

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: TopicMode, qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: TopicMode, qos: 1, payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient(t)
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	c := newClient(testConfig())
	if err := c.Publish(TopicMode, []byte("auto"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishBrokerFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout bool
	}{
		{name: "rejected", err: errors.New("not authorised")},
		{name: "timeout", timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := connectedClient(t)
			fake.publishErr = tt.err
			fake.timeout = tt.timeout

			if err := c.Publish(TopicMode, []byte("auto"), 1, false); !errors.Is(err, ErrPublishFailed) {
				t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
			}
		})
	}
}

// =============================================================================
// Subscribe
// =============================================================================

func TestSubscribeDeliversMessages(t *testing.T) {
	c, fake := connectedClient(t)

	var gotTopic, gotPayload string
	err := c.Subscribe(TopicMode, 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(TopicMode) || c.SubscriptionCount() != 1 {
		t.Errorf("subscription not tracked: count=%d", c.SubscriptionCount())
	}

	fake.deliver(TopicMode, []byte("manual"))

	if gotTopic != TopicMode || gotPayload != "manual" {
		t.Errorf("handler got %q=%q", gotTopic, gotPayload)
	}
}

func TestSubscribeValidation(t *testing.T) {
	noop := func(string, []byte) error { return nil }
	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, handler: noop, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: TopicMode, qos: 5, handler: noop, wantErr: ErrInvalidQoS},
		{name: "nil handler", topic: TopicMode, qos: 1, handler: nil, wantErr: ErrSubscribeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient(t)
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
			if c.SubscriptionCount() != 0 {
				t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
			}
		})
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	c := newClient(testConfig())
	err := c.Subscribe(TopicMode, 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeBrokerFailureUntracks(t *testing.T) {
	c, fake := connectedClient(t)
	fake.subscribeErr = errors.New("denied by ACL")

	err := c.Subscribe(TopicUpdate, 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription(TopicUpdate) {
		t.Error("failed subscription is still tracked")
	}
}

func TestHandlerErrorsAndPanicsAreLogged(t *testing.T) {
	c, fake := connectedClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe(TopicThreshold, 1, func(string, []byte) error {
		return errors.New("bad threshold")
	})
	_ = c.Subscribe(TopicUpdate, 1, func(string, []byte) error {
		panic("boom")
	})

	fake.deliver(TopicThreshold, []byte("abc"))
	fake.deliver(TopicUpdate, []byte("{}"))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want 1 handler error", logger.warns)
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors = %v, want 1 recovered panic", logger.errs)
	}
}
