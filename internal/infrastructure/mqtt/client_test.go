package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/dti-core/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "dti-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a client that never dialled a broker.
func disconnectedClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *mockLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceState", topics.DeviceState("dome_shutter"), "dti/device/dome_shutter/state"},
		{"PipelineRun", topics.PipelineRun("target_set"), "dti/pipeline/target_set"},
		{"Alerts", topics.Alerts(), "dti/alerts"},
		{"SystemStatus", topics.SystemStatus(), "dti/system/status"},
		{"Unsafe", topics.Unsafe(), "dti/system/unsafe"},
		{"OperatorAction", topics.OperatorAction("clear"), "dti/operator/clear"},
		{"AllOperatorActions", topics.AllOperatorActions(), "dti/operator/+"},
		{"AllDeviceStates", topics.AllDeviceStates(), "dti/device/+/state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseOperatorTopic(t *testing.T) {
	tests := []struct {
		topic  string
		action string
		ok     bool
	}{
		{"dti/operator/clear", "clear", true},
		{"dti/operator/slew_stop", "slew_stop", true},
		{"dti/operator/", "", false},
		{"dti/operator/slew/north", "", false},
		{"dti/alerts", "", false},
		{"other/operator/clear", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			action, ok := ParseOperatorTopic(tt.topic)
			if action != tt.action || ok != tt.ok {
				t.Errorf("ParseOperatorTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, action, ok, tt.action, tt.ok)
			}
		})
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "dti", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "dti-test" || opts.Username != "dti" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be on")
	}
	if opts.TLSConfig != nil && len(opts.TLSConfig.Certificates) > 0 {
		t.Error("unexpected TLS certificates")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if !strings.HasPrefix(opts.Servers[0].String(), "ssl://") {
		t.Errorf("TLS broker URL = %s, want ssl://", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "dti-test")

	if !opts.WillEnabled || opts.WillTopic != "dti/system/status" || !opts.WillRetained {
		t.Errorf("will = %v/%q/%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var st SystemStatus
	if err := json.Unmarshal(opts.WillPayload, &st); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if st.Status != StatusOffline || st.Reason != "unexpected_disconnect" || st.ClientID != "dti-test" {
		t.Errorf("will payload = %+v", st)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var st SystemStatus
	if err := json.Unmarshal(buildStatusPayload(StatusOnline, "dti-core", ""), &st); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if st.Status != StatusOnline || st.ClientID != "dti-core" || st.Timestamp == "" {
		t.Errorf("payload = %+v", st)
	}
	if st.Reason != "" {
		t.Errorf("Reason = %q, want empty", st.Reason)
	}
}

// =============================================================================
// Validation Tests (no broker needed)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "dti/alerts", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "dti/alerts", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "dti/alerts", []byte("x"), 1, ErrNotConnected},
		{"nil payload not connected", "dti/alerts", nil, 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON(t *testing.T) {
	c := disconnectedClient()

	if err := c.PublishJSON("dti/alerts", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
	if err := c.PublishJSON("dti/alerts", map[string]string{"a": "b"}, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want ErrNotConnected", err)
	}
	if err := c.PublishRetained("dti/system/unsafe", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"bad qos", "dti/operator/+", 5, noop, ErrInvalidQoS},
		{"nil handler", "dti/operator/+", 1, nil, ErrSubscribeFailed},
		{"not connected", "dti/operator/+", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 || c.HasSubscription("dti/operator/+") {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if err := disconnectedClient().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Handler Dispatch Tests
// =============================================================================

func TestDispatch(t *testing.T) {
	c := disconnectedClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got []string
	c.dispatch(func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	}, "dti/operator/clear", []byte("{}"))
	if len(got) != 1 || got[0] != "dti/operator/clear={}" {
		t.Errorf("handler saw %v", got)
	}

	c.dispatch(func(string, []byte) error {
		return errors.New("bad payload")
	}, "dti/operator/slew", nil)
	if len(logger.warns) != 1 {
		t.Errorf("handler error logged %d warnings, want 1", len(logger.warns))
	}

	c.dispatch(func(string, []byte) error {
		panic("boom")
	}, "dti/operator/slew", nil)
	if len(logger.errors) != 1 {
		t.Errorf("handler panic logged %d errors, want 1", len(logger.errors))
	}
}

func TestDispatchWithoutLogger(t *testing.T) {
	c := disconnectedClient()
	// Must not panic even with no logger set.
	c.dispatch(func(string, []byte) error { panic("boom") }, "dti/operator/clear", nil)
}
