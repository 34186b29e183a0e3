package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the part of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// DefaultMQTTPayload formats the bucket as a WLED API call.
const DefaultMQTTPayload = "PL=%s"

// MQTTSink publishes commands to a broker topic, e.g. a WLED device's
// "<prefix>/api" topic.
type MQTTSink struct {
	client   Publisher
	topic    string
	format   string
	qos      byte
	retained bool
	presets  map[string]int
}

// NewMQTTSink creates a sink publishing to topic. format is a fmt template
// receiving the preset (or the command when presets has no entry for it);
// empty uses DefaultMQTTPayload.
func NewMQTTSink(client Publisher, topic, format string, qos byte, retained bool, presets map[string]int) *MQTTSink {
	if format == "" {
		format = DefaultMQTTPayload
	}
	return &MQTTSink{
		client:   client,
		topic:    topic,
		format:   format,
		qos:      qos,
		retained: retained,
		presets:  presets,
	}
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Payload renders the message body for a command.
func (s *MQTTSink) Payload(command string) string {
	if p, ok := s.presets[command]; ok {
		return fmt.Sprintf(s.format, strconv.Itoa(p))
	}
	return fmt.Sprintf(s.format, command)
}

// Send publishes the command and waits for the broker acknowledgement or ctx.
func (s *MQTTSink) Send(ctx context.Context, job Job) error {
	if s.client == nil {
		return errors.New("mqtt client not configured")
	}

	token := s.client.Publish(s.topic, s.qos, s.retained, s.Payload(job.Command))
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish timeout: %w", ctx.Err())
	}
}
