package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/tone"
)

// Validate checks the configuration and fills zero values that have a
// safe default.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogFormat {
	case "":
		c.LogFormat = "text"
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	if c.Capture.Source == "" {
		errs = append(errs, errors.New("capture.source is required"))
	}
	if c.Capture.IdleFPS <= 0 {
		c.Capture.IdleFPS = 5
	}
	if c.Capture.ActiveFPS <= 0 {
		c.Capture.ActiveFPS = c.Capture.IdleFPS
	}
	if c.Capture.IdleTimeout < 0 {
		errs = append(errs, errors.New("capture.idle_timeout must not be negative"))
	}
	if c.Capture.SceneThreshold < 0 || c.Capture.SceneThreshold > 100 {
		errs = append(errs, fmt.Errorf("capture.scene_threshold must be within [0,100], got %v", c.Capture.SceneThreshold))
	}

	if d := c.Detector.Downscale; d < 0 || d > 1 {
		errs = append(errs, fmt.Errorf("detector.downscale must be within (0,1], got %v", d))
	}
	if c.Detector.ScaleFactor != 0 && c.Detector.ScaleFactor <= 1 {
		errs = append(errs, fmt.Errorf("detector.scale_factor must be greater than 1, got %v", c.Detector.ScaleFactor))
	}

	switch tone.Shape(c.Palette.Shape) {
	case "":
		c.Palette.Shape = string(tone.ShapeMultiSample)
	case tone.ShapeMultiSample, tone.ShapeCentroid:
	default:
		errs = append(errs, fmt.Errorf("palette.shape must be multi or centroid, got %q", c.Palette.Shape))
	}

	if err := c.NewSampler().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}

	if n := len(c.Classifier.Weights); n != 0 && n != 3 {
		errs = append(errs, fmt.Errorf("classifier.weights needs 3 values, got %d", n))
	}
	for _, w := range c.Classifier.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Errorf("classifier.weights must be finite and non-negative, got %v", w))
			break
		}
	}
	if t := c.Classifier.BrightnessTarget; math.IsNaN(t) || math.IsInf(t, 0) {
		errs = append(errs, fmt.Errorf("classifier.brightness_target must be finite, got %v", t))
	}

	if err := c.SlotConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stabilizer: %w", err))
	}

	switch strings.ToLower(c.Pipeline.SlotMode) {
	case "":
		c.Pipeline.SlotMode = SlotSingle
	case SlotSingle, SlotPositional:
		c.Pipeline.SlotMode = strings.ToLower(c.Pipeline.SlotMode)
	default:
		errs = append(errs, fmt.Errorf("pipeline.slot_mode must be single or positional, got %q", c.Pipeline.SlotMode))
	}

	if c.Dispatch.Commands == nil {
		c.Dispatch.Commands = dispatch.DefaultCommands()
	}
	if err := c.PolicyConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dispatch: %w", err))
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = dispatch.DefaultQueueSize
	}
	if c.Dispatch.Timeout <= 0 {
		c.Dispatch.Timeout = dispatch.DefaultTimeout
	}
	if c.Dispatch.Retries < 0 {
		errs = append(errs, errors.New("dispatch.retries must not be negative"))
	}
	if c.Dispatch.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("dispatch.mqtt requires mqtt.broker"))
	}
	if c.Dispatch.MQTT.Payload == "" {
		c.Dispatch.MQTT.Payload = dispatch.DefaultMQTTPayload
	}
	if c.Dispatch.MQTT.QoS > 2 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt qos must be 0, 1 or 2"))
	}
	for _, h := range c.Dispatch.WLED.Hosts {
		if strings.TrimSpace(h) == "" {
			errs = append(errs, errors.New("dispatch.wled.hosts contains an empty host"))
			break
		}
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tonelight"
	}

	return errors.Join(errs...)
}
