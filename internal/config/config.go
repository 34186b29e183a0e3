// Package config loads tonelight configuration from YAML, environment
// variables and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chroma/tonelight/internal/capture"
	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/sampler"
	"github.com/chroma/tonelight/internal/tone"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TONELIGHT_"

// Slot modes.
const (
	SlotSingle     = "single"
	SlotPositional = "positional"
)

// Config represents the complete tonelight configuration.
type Config struct {
	LogFormat  string           `yaml:"log_format"`
	Debug      bool             `yaml:"debug"`
	DataDir    string           `yaml:"data_dir"`
	Database   string           `yaml:"database"`
	Capture    CaptureConfig    `yaml:"capture"`
	Detector   DetectorConfig   `yaml:"detector"`
	Palette    PaletteConfig    `yaml:"palette"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Stabilizer StabilizerConfig `yaml:"stabilizer"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Server     ServerConfig     `yaml:"server"`
	Tray       bool             `yaml:"tray"`
}

// CaptureConfig contains frame source settings.
type CaptureConfig struct {
	Source         string        `yaml:"source"` // device index, file or stream URL
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	IdleFPS        int           `yaml:"idle_fps"`
	ActiveFPS      int           `yaml:"active_fps"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	SceneThreshold float64       `yaml:"scene_threshold"` // percent of pixels
}

// DetectorConfig contains face detection settings.
type DetectorConfig struct {
	CascadePath  string  `yaml:"cascade_path"`
	Downscale    float64 `yaml:"downscale"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinFaceSize  int     `yaml:"min_face_size"`
	MaxFaces     int     `yaml:"max_faces"`
}

// PaletteConfig selects the reference data.
type PaletteConfig struct {
	Path   string `yaml:"path"` // CSV file; empty loads the stored palette
	Shape  string `yaml:"shape"`
	Strict bool   `yaml:"strict"`
}

// SamplerConfig contains the sampled band.
type SamplerConfig struct {
	BandTop      float64 `yaml:"band_top"`
	BandBottom   float64 `yaml:"band_bottom"`
	ChannelOrder string  `yaml:"channel_order"`
}

// ClassifierConfig contains distance options.
type ClassifierConfig struct {
	Weights             []float64 `yaml:"weights"`
	NormalizeBrightness bool      `yaml:"normalize_brightness"`
	BrightnessTarget    float64   `yaml:"brightness_target"`
}

// StabilizerConfig contains voting options.
type StabilizerConfig struct {
	Window        int    `yaml:"window"`
	Policy        string `yaml:"policy"`
	HoldAfterEmit bool   `yaml:"hold_after_emit"`
}

// PipelineConfig contains orchestration options.
type PipelineConfig struct {
	SlotMode string `yaml:"slot_mode"`
	Enabled  bool   `yaml:"enabled"`
}

// DispatchConfig contains the trigger policy and sinks.
type DispatchConfig struct {
	Mode           string            `yaml:"mode"`
	Commands       map[string]string `yaml:"commands"`
	DefaultCommand string            `yaml:"default_command"`
	ResetCommand   string            `yaml:"reset_command"`
	QueueSize      int               `yaml:"queue_size"`
	Timeout        time.Duration     `yaml:"timeout"`
	Retries        int               `yaml:"retries"`
	RetryBackoff   time.Duration     `yaml:"retry_backoff"`
	WLED           WLEDConfig        `yaml:"wled"`
	MQTT           MQTTSinkConfig    `yaml:"mqtt"`
	Exec           ExecConfig        `yaml:"exec"`
}

// WLEDConfig lists WLED controllers.
type WLEDConfig struct {
	Hosts   []string       `yaml:"hosts"`
	Presets map[string]int `yaml:"presets"`
}

// MQTTSinkConfig publishes commands to a topic.
type MQTTSinkConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Topic    string `yaml:"topic"`
	Payload  string `yaml:"payload"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// ExecConfig points at external hook executables.
type ExecConfig struct {
	HooksDir string `yaml:"hooks_dir"`
}

// MQTTConfig contains broker settings shared by the sink and control plane.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ControlTopic  string `yaml:"control_topic"`
	ResponseTopic string `yaml:"response_topic"`
	QoS           byte   `yaml:"qos"`
}

// ServerConfig contains the HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	det := detector.DefaultConfig()

	return &Config{
		LogFormat: "text",
		DataDir:   filepath.Join(home, ".tonelight"),
		Capture: CaptureConfig{
			Source:         "0",
			Width:          capture.DefaultWidth,
			Height:         capture.DefaultHeight,
			IdleFPS:        5,
			ActiveFPS:      15,
			IdleTimeout:    2 * time.Second,
			SceneThreshold: 1.0,
		},
		Detector: DetectorConfig{
			Downscale:    det.Downscale,
			ScaleFactor:  det.ScaleFactor,
			MinNeighbors: det.MinNeighbors,
			MinFaceSize:  det.MinFaceSize,
			MaxFaces:     det.MaxFaces,
		},
		Palette: PaletteConfig{
			Shape:  string(tone.ShapeMultiSample),
			Strict: true,
		},
		Sampler: SamplerConfig{
			BandTop:      sampler.DefaultBandTop,
			BandBottom:   sampler.DefaultBandBottom,
			ChannelOrder: string(sampler.OrderBGR),
		},
		Classifier: ClassifierConfig{
			Weights:          []float64{1, 1, 1},
			BrightnessTarget: tone.DefaultBrightnessTarget,
		},
		Stabilizer: StabilizerConfig{
			Window:        tone.DefaultWindow,
			Policy:        string(tone.VoteFixed),
			HoldAfterEmit: true,
		},
		Pipeline: PipelineConfig{
			SlotMode: SlotSingle,
			Enabled:  true,
		},
		Dispatch: DispatchConfig{
			Mode:           string(dispatch.ModeFireOnce),
			Commands:       dispatch.DefaultCommands(),
			DefaultCommand: dispatch.DefaultFallbackCommand,
			QueueSize:      dispatch.DefaultQueueSize,
			Timeout:        dispatch.DefaultTimeout,
			Retries:        1,
			RetryBackoff:   dispatch.DefaultRetryBackoff,
			WLED: WLEDConfig{
				Presets: dispatch.DefaultPresets(),
			},
			MQTT: MQTTSinkConfig{
				Topic:   "wled/main/api",
				Payload: dispatch.DefaultMQTTPayload,
			},
		},
		MQTT: MQTTConfig{
			ClientID:      "tonelight",
			ControlTopic:  "tonelight/control",
			ResponseTopic: "tonelight/status",
			QoS:           1,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays TONELIGHT_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("LOG_FORMAT", &c.LogFormat)
	boolean("DEBUG", &c.Debug)
	str("DATA_DIR", &c.DataDir)
	str("DB", &c.Database)
	str("SOURCE", &c.Capture.Source)
	str("CASCADE", &c.Detector.CascadePath)
	str("PALETTE", &c.Palette.Path)
	str("SLOT_MODE", &c.Pipeline.SlotMode)
	str("DISPATCH_MODE", &c.Dispatch.Mode)
	str("HOOKS_DIR", &c.Dispatch.Exec.HooksDir)
	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	boolean("MQTT_SINK", &c.Dispatch.MQTT.Enabled)
	str("HTTP_ADDR", &c.Server.Addr)
	boolean("TRAY", &c.Tray)

	if v := getenv(EnvPrefix + "WLED_HOSTS"); v != "" {
		c.Dispatch.WLED.Hosts = splitList(v)
	}
	if v := getenv(EnvPrefix + "WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Stabilizer.Window = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DatabasePath returns the SQLite path, defaulting into DataDir.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "tonelight.db")
}

// SlotConfig returns the stabilizer configuration. A fixed window only
// holds after emitting in fire-once mode; continuous dispatch needs every
// window re-evaluated.
func (c *Config) SlotConfig() tone.SlotConfig {
	hold := c.Stabilizer.HoldAfterEmit
	if dispatch.Mode(c.Dispatch.Mode) == dispatch.ModeContinuous {
		hold = false
	}
	return tone.SlotConfig{
		Window:        c.Stabilizer.Window,
		Policy:        tone.VotePolicy(c.Stabilizer.Policy),
		HoldAfterEmit: hold,
	}
}

// ClassifierOptions returns the classifier options.
func (c *Config) ClassifierOptions() tone.ClassifierOptions {
	opts := tone.DefaultClassifierOptions()
	if len(c.Classifier.Weights) == 3 {
		copy(opts.Weights[:], c.Classifier.Weights)
	}
	opts.NormalizeBrightness = c.Classifier.NormalizeBrightness
	if c.Classifier.BrightnessTarget > 0 {
		opts.BrightnessTarget = c.Classifier.BrightnessTarget
	}
	return opts
}

// PaletteOptions returns the CSV loading options.
func (c *Config) PaletteOptions() tone.PaletteOptions {
	opts := tone.DefaultPaletteOptions()
	opts.Strict = c.Palette.Strict
	if c.Palette.Shape != "" {
		opts.Shape = tone.Shape(c.Palette.Shape)
	}
	return opts
}

// NewSampler returns the configured sampler.
func (c *Config) NewSampler() *sampler.Sampler {
	return &sampler.Sampler{
		BandTop:    c.Sampler.BandTop,
		BandBottom: c.Sampler.BandBottom,
		Order:      sampler.ChannelOrder(strings.ToLower(c.Sampler.ChannelOrder)),
	}
}

// DetectorConfig returns the face detector configuration.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		CascadePath:  c.Detector.CascadePath,
		Downscale:    c.Detector.Downscale,
		ScaleFactor:  c.Detector.ScaleFactor,
		MinNeighbors: c.Detector.MinNeighbors,
		MinFaceSize:  c.Detector.MinFaceSize,
		MaxFaces:     c.Detector.MaxFaces,
	}
}

// PolicyConfig returns the dispatch policy configuration.
func (c *Config) PolicyConfig() dispatch.PolicyConfig {
	return dispatch.PolicyConfig{
		Mode:           dispatch.Mode(c.Dispatch.Mode),
		Commands:       c.Dispatch.Commands,
		DefaultCommand: c.Dispatch.DefaultCommand,
	}
}

// DispatchOptions returns the dispatcher options without callbacks.
func (c *Config) DispatchOptions() dispatch.Options {
	return dispatch.Options{
		QueueSize:    c.Dispatch.QueueSize,
		Timeout:      c.Dispatch.Timeout,
		Retries:      c.Dispatch.Retries,
		RetryBackoff: c.Dispatch.RetryBackoff,
	}
}
