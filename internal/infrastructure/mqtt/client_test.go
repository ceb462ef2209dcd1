package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "plugd-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "plugd-test",
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close()

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		topics Topics
		got    func(Topics) string
		want   string
	}{
		{"state", Topics{Prefix: "plugd"}, func(tp Topics) string { return tp.State("plug-001") }, "plugd/state/plug-001"},
		{"event", Topics{Prefix: "plugd"}, func(tp Topics) string { return tp.Event("on") }, "plugd/event/on"},
		{"command", Topics{Prefix: "plugd"}, func(tp Topics) string { return tp.Command("plug-001") }, "plugd/command/plug-001"},
		{"ack", Topics{Prefix: "plugd"}, func(tp Topics) string { return tp.Ack("plug-001") }, "plugd/ack/plug-001"},
		{"system status", Topics{Prefix: "plugd"}, func(tp Topics) string { return tp.SystemStatus() }, "plugd/system/status"},
		{"empty prefix", Topics{}, func(tp Topics) string { return tp.State("x") }, "plugd/state/x"},
		{"custom prefix", Topics{Prefix: "home/plugs/"}, func(tp Topics) string { return tp.Ack("x") }, "home/plugs/ack/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.topics); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "plugd", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "plugd-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "plugd" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("reconnect = %v/%v", opts.AutoReconnect, opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != "plugd-test/system/status" {
		t.Errorf("will = enabled:%v retained:%v topic:%q", opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}

	var will presence
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if will.Status != "offline" || will.Reason != reasonUnexpected {
		t.Errorf("will = %+v", will)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}

	cfg.Broker.TLS = true
	tlsOpts := buildClientOptions(cfg)
	if tlsOpts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", tlsOpts.Servers[0].Scheme)
	}
	if tlsOpts.TLSConfig == nil || tlsOpts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS min version not set")
	}
}

func TestPresencePayload(t *testing.T) {
	var p presence
	if err := json.Unmarshal(presencePayload("online", "plugd", ""), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != "online" || p.ClientID != "plugd" || p.Reason != "" {
		t.Errorf("presence = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", p.Timestamp, err)
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := c.Publish("plugd/x", []byte("{}"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("plugd/x", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish json unencodable", c.PublishJSON("t", make(chan int), false), ErrPublishFailed},
		{"subscribe empty topic", c.Subscribe("", 1, handler), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 5, handler), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for connect timeout")
	}
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)
	topic := client.Topics().Command("roundtrip")

	var (
		mu       sync.Mutex
		received []byte
	)
	done := make(chan struct{})
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		mu.Lock()
		received = payload
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}

	if err := client.PublishJSON(topic, map[string]string{"command": "on"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != `{"command":"on"}` {
		t.Errorf("payload = %s", received)
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}
