package mqtt

import (
	"context"
	"strings"
	"testing"

	"github.com/quarterline/avops-core/internal/infrastructure/config"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "zone state", got: topics.ZoneState("zone-3"), want: "avops/state/zone/zone-3"},
		{name: "all zone states", got: topics.AllZoneStates(), want: "avops/state/zone/+"},
		{name: "command event", got: topics.CommandEvent("matrix-main"), want: "avops/event/command/matrix-main"},
		{name: "all command events", got: topics.AllCommandEvents(), want: "avops/event/command/+"},
		{name: "zone command", got: topics.ZoneCommand("zone-1"), want: "avops/command/zone/zone-1"},
		{name: "all zone commands", got: topics.AllZoneCommands(), want: "avops/command/zone/+"},
		{name: "sweep report", got: topics.SweepReport("matrix-main"), want: "avops/event/sweep/matrix-main"},
		{name: "system status", got: topics.SystemStatus(), want: "avops/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestZoneIDFromCommandTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{topic: "avops/command/zone/zone-3", wantID: "zone-3", wantOK: true},
		{topic: "avops/command/zone/", wantOK: false},
		{topic: "avops/command/zone/a/b", wantOK: false},
		{topic: "avops/state/zone/zone-3", wantOK: false},
		{topic: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := ZoneIDFromCommandTopic(tt.topic)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("ZoneIDFromCommandTopic(%q) = %q, %v; want %q, %v",
					tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("avops-core")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"avops-core"`) {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("avops-core")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			TLS:      true,
			ClientID: "avops-test",
		},
		Auth: config.MQTTAuthConfig{Username: "ops", Password: "secret"},
		QoS:  1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker url = %q, want ssl scheme", got)
	}
	if opts.ClientID != "avops-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if opts.Username != "ops" {
		t.Errorf("username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config should be set when broker.tls is true")
	}
}

func TestDisconnectedClientRejectsOperations(t *testing.T) {
	c := &Client{subscriptions: map[string]subscription{}}

	if err := c.Publish("avops/system/status", []byte("x"), 1, false); err != ErrNotConnected {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("avops/command/zone/+", 1, func(string, []byte) error { return nil }); err != ErrNotConnected {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("", nil, 1, false); err != ErrInvalidTopic {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", nil, 3, false); err != ErrInvalidQoS {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.HealthCheck(context.Background()); err != ErrNotConnected {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}
