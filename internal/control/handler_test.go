package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeClient struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	subscribe string
	subErr    error
	published chan Response
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(chan Response, 16)}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribe = topic
	c.handler = cb
	return doneToken{err: c.subErr}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token { return doneToken{} }
func (c *fakeClient) IsConnected() bool                       { return true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var resp Response
	_ = json.Unmarshal(payload.([]byte), &resp)
	c.published <- resp
	return doneToken{}
}

func (c *fakeClient) deliver(t *testing.T, payload string) Response {
	t.Helper()
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		t.Fatal("handler not subscribed")
	}
	h(nil, fakeMessage{topic: "tonelight/control", payload: []byte(payload)})

	select {
	case resp := <-c.published:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for response")
		return Response{}
	}
}

func startHandler(t *testing.T, cb Callbacks) (*Handler, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	h := NewHandler(client, Options{
		ControlTopic:  "tonelight/control",
		ResponseTopic: "tonelight/status",
		QoS:           1,
	}, cb)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.Stop)
	return h, client
}

func TestHandler_Subscribes(t *testing.T) {
	_, client := startHandler(t, Callbacks{})
	if client.subscribe != "tonelight/control" {
		t.Errorf("expected subscription to control topic, got %q", client.subscribe)
	}
}

func TestHandler_SubscribeError(t *testing.T) {
	client := newFakeClient()
	client.subErr = errors.New("not authorized")
	h := NewHandler(client, Options{ControlTopic: "c"}, Callbacks{})
	if err := h.Start(context.Background()); err == nil {
		t.Error("expected subscription error")
	}
}

func TestHandler_Commands(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
			return nil
		}
	}

	_, client := startHandler(t, Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"enabled": true}
		},
		OnReset:   record("reset"),
		OnEnable:  record("enable"),
		OnDisable: record("disable"),
		OnResetSlot: func(slot string) error {
			return record("reset_slot:" + slot)()
		},
		OnSend: func(cmd string) error {
			return record("send:" + cmd)()
		},
	})

	tests := []struct {
		payload string
		status  string
	}{
		{`{"command":"get_status"}`, "success"},
		{`{"command":"reset"}`, "success"},
		{`{"command":"reset_slot","params":{"slot":"1"}}`, "success"},
		{`{"command":"enable"}`, "success"},
		{`{"command":"disable"}`, "success"},
		{`{"command":"send","params":{"command":"Bucket2"}}`, "success"},
		{`{"command":"send"}`, "error"},
		{`{"command":"reset_slot","params":{"slot":3}}`, "error"},
		{`{"command":"stop"}`, "error"},
		{`{"command":"dance"}`, "error"},
	}

	for _, tt := range tests {
		resp := client.deliver(t, tt.payload)
		if resp.Status != tt.status {
			t.Errorf("%s: expected status %s, got %s (%s)", tt.payload, tt.status, resp.Status, resp.Error)
		}
		if resp.Timestamp == "" {
			t.Errorf("%s: expected timestamp", tt.payload)
		}
	}

	want := []string{"reset", "reset_slot:1", "enable", "disable", "send:Bucket2"}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestHandler_StatusData(t *testing.T) {
	_, client := startHandler(t, Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"frames": 42}
		},
	})

	resp := client.deliver(t, `{"command":"get_status"}`)
	if resp.CommandAck != CmdGetStatus {
		t.Errorf("unexpected ack %q", resp.CommandAck)
	}
	if resp.Data["frames"] != float64(42) {
		t.Errorf("unexpected data %v", resp.Data)
	}
}

func TestHandler_CallbackError(t *testing.T) {
	_, client := startHandler(t, Callbacks{
		OnReset: func() error { return errors.New("pipeline not running") },
	})

	resp := client.deliver(t, `{"command":"reset"}`)
	if resp.Status != "error" || resp.Error != "pipeline not running" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_InvalidJSON(t *testing.T) {
	_, client := startHandler(t, Callbacks{})

	resp := client.deliver(t, `{not json`)
	if resp.CommandAck != "unknown" || resp.Error != "invalid JSON" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_StopIsIdempotent(t *testing.T) {
	h, client := startHandler(t, Callbacks{})
	h.Stop()
	h.Stop()

	// late messages are dropped without panicking
	client.handler(nil, fakeMessage{payload: []byte(`{"command":"reset"}`)})
}
