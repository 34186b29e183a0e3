package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed or never-completing mqtt.Token.
type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakePublisher struct {
	mu       sync.Mutex
	calls    []publishCall
	err      error
	complete bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{topic, qos, retained, payload})
	return newFakeToken(p.complete, p.err)
}

func TestMQTTSink_Publish(t *testing.T) {
	pub := &fakePublisher{complete: true}
	s := NewMQTTSink(pub, "wled/main/api", "", 1, false, DefaultPresets())

	if err := s.Send(context.Background(), NewJob("0", "monk_7", "Bucket4")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	c := pub.calls[0]
	if c.topic != "wled/main/api" || c.qos != 1 || c.retained {
		t.Errorf("unexpected publish %+v", c)
	}
	if c.payload != "PL=4" {
		t.Errorf("expected payload PL=4, got %v", c.payload)
	}
}

func TestMQTTSink_Payload(t *testing.T) {
	s := NewMQTTSink(nil, "t", "", 0, false, nil)
	if got := s.Payload("Bucket2"); got != "PL=Bucket2" {
		t.Errorf("without presets expected raw command, got %q", got)
	}

	s = NewMQTTSink(nil, "t", `{"ps":%s}`, 0, false, map[string]int{"Bucket2": 7})
	if got := s.Payload("Bucket2"); got != `{"ps":7}` {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestMQTTSink_Errors(t *testing.T) {
	boom := errors.New("not authorized")
	failing := NewMQTTSink(&fakePublisher{complete: true, err: boom}, "t", "", 0, false, nil)
	if err := failing.Send(context.Background(), NewJob("0", "", "Bucket1")); !errors.Is(err, boom) {
		t.Errorf("expected publish error, got %v", err)
	}

	stuck := NewMQTTSink(&fakePublisher{complete: false}, "t", "", 0, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := stuck.Send(ctx, NewJob("0", "", "Bucket1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	if err := NewMQTTSink(nil, "t", "", 0, false, nil).Send(context.Background(), Job{}); err == nil {
		t.Error("expected error without client")
	}
}
