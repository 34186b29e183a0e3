package broker

import (
	"testing"
	"time"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:1883", "tcp://localhost:1883"},
		{"tcp://10.0.0.5:1883", "tcp://10.0.0.5:1883"},
		{"ssl://broker:8883", "ssl://broker:8883"},
		{"ws://broker:9001/mqtt", "ws://broker:9001/mqtt"},
	}
	for _, tt := range tests {
		if got := BrokerURL(tt.in); got != tt.want {
			t.Errorf("BrokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	conn := &Conn{}
	co := ClientOptions(Options{
		Broker:   "broker:1883",
		ClientID: "tonelight-test",
		Username: "user",
		Password: "secret",
	}, conn)

	if len(co.Servers) != 1 || co.Servers[0].String() != "tcp://broker:1883" {
		t.Errorf("unexpected servers %v", co.Servers)
	}
	if co.ClientID != "tonelight-test" {
		t.Errorf("unexpected client id %q", co.ClientID)
	}
	if co.Username != "user" || co.Password != "secret" {
		t.Error("expected credentials to be set")
	}
	if !co.AutoReconnect || !co.ConnectRetry {
		t.Error("expected reconnect enabled")
	}
	if co.MaxReconnectInterval != 30*time.Second {
		t.Errorf("unexpected max reconnect interval %v", co.MaxReconnectInterval)
	}

	co.OnConnect(nil)
	if !conn.IsConnected() {
		t.Error("expected connected after OnConnect")
	}
	co.OnConnectionLost(nil, nil)
	if conn.IsConnected() {
		t.Error("expected disconnected after OnConnectionLost")
	}
}

func TestConnect_RequiresBroker(t *testing.T) {
	if _, err := Connect(Options{}); err == nil {
		t.Error("expected error without broker")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	// connect retry keeps the token pending, so this exercises the timeout
	_, err := Connect(Options{Broker: "127.0.0.1:1", ClientID: "tonelight-test"})
	if err == nil {
		t.Error("expected error for unreachable broker")
	}
}
