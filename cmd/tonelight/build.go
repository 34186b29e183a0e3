package main

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/broker"
	"github.com/chroma/tonelight/internal/capture"
	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/tone"
)

// loadPalette loads the configured CSV, falling back to the imported
// palette in the store.
func loadPalette() (*tone.Palette, error) {
	opts := cfg.PaletteOptions()
	opts.Logger = logger

	if cfg.Palette.Path != "" {
		p, report, err := tone.LoadPalette(cfg.Palette.Path, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("reference palette loaded",
			"path", cfg.Palette.Path,
			"labels", report.Labels,
			"samples", report.Loaded,
			"skipped", report.Skipped)
		return p, nil
	}

	p, err := db.References().Palette()
	if errors.Is(err, tone.ErrEmptyPalette) {
		return nil, errors.New("no reference palette: run 'tonelight palette import <csv>' or set palette.path")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stored palette: %w", err)
	}
	return p.WithShape(opts.Shape)
}

func newClassifier() (*tone.Classifier, error) {
	p, err := loadPalette()
	if err != nil {
		return nil, err
	}
	return tone.NewClassifier(p, cfg.ClassifierOptions())
}

// connectBroker connects to the configured MQTT broker. It returns nil
// when no broker is configured.
func connectBroker() (*broker.Conn, error) {
	if cfg.MQTT.Broker == "" {
		return nil, nil
	}
	return broker.Connect(broker.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Logger:   logger,
	})
}

// buildSinks creates every configured dispatch sink.
func buildSinks(conn *broker.Conn) ([]dispatch.Sink, error) {
	d := cfg.Dispatch
	var sinks []dispatch.Sink

	if len(d.WLED.Hosts) > 0 {
		sinks = append(sinks, dispatch.NewWLEDSink(d.WLED.Hosts, d.WLED.Presets))
		logger.Info("wled sink configured", "hosts", d.WLED.Hosts)
	}

	if d.MQTT.Enabled {
		if conn == nil {
			return nil, errors.New("dispatch.mqtt requires mqtt.broker")
		}
		sinks = append(sinks, dispatch.NewMQTTSink(conn.Client, d.MQTT.Topic, d.MQTT.Payload, d.MQTT.QoS, d.MQTT.Retained, d.WLED.Presets))
		logger.Info("mqtt sink configured", "broker", conn.Broker(), "topic", d.MQTT.Topic)
	}

	if d.Exec.HooksDir != "" {
		hooks, err := dispatch.DiscoverHooks(d.Exec.HooksDir)
		if err != nil {
			return nil, fmt.Errorf("failed to discover hooks: %w", err)
		}
		if len(hooks) > 0 {
			sinks = append(sinks, dispatch.NewExecSink(hooks))
			for _, h := range hooks {
				logger.Info("hook loaded", "name", h.Manifest.Name, "version", h.Manifest.Version)
			}
		}
	}

	if len(sinks) == 0 {
		logger.Warn("no dispatch sinks configured, finalized tones will only be logged")
	}
	return sinks, nil
}

// appConfig carries per-command overrides into buildApp.
type appConfig struct {
	camera   capture.Camera
	detector detector.Detector
	sinks    []dispatch.Sink
	preview  bool
	// noDispatch keeps the policy but drops every sink.
	noDispatch bool
}

// buildApp assembles the pipeline from the loaded configuration.
func buildApp(ac appConfig) (*app.App, error) {
	classifier, err := newClassifier()
	if err != nil {
		return nil, err
	}

	policy, err := dispatch.NewPolicy(cfg.PolicyConfig(), logger)
	if err != nil {
		return nil, err
	}

	cam := ac.camera
	if cam == nil {
		cam = capture.NewCameraWithSize(capture.Source(cfg.Capture.Source), cfg.Capture.Width, cfg.Capture.Height)
	}

	det := ac.detector
	if det == nil {
		det, err = detector.NewCascadeDetector(cfg.DetectorConfig())
		if err != nil {
			return nil, err
		}
	}

	sinks := ac.sinks
	if ac.noDispatch {
		sinks = nil
	}

	a, err := app.New(app.Options{
		Camera:         cam,
		Detector:       det,
		Sampler:        cfg.NewSampler(),
		Classifier:     classifier,
		SlotConfig:     cfg.SlotConfig(),
		Policy:         policy,
		Sinks:          sinks,
		Dispatch:       cfg.DispatchOptions(),
		Store:          db,
		SlotMode:       cfg.Pipeline.SlotMode,
		IdleFPS:        cfg.Capture.IdleFPS,
		ActiveFPS:      cfg.Capture.ActiveFPS,
		IdleTimeout:    cfg.Capture.IdleTimeout,
		SceneThreshold: cfg.Capture.SceneThreshold,
		ResetCommand:   cfg.Dispatch.ResetCommand,
		Disabled:       !cfg.Pipeline.Enabled,
		Preview:        ac.preview,
		Logger:         logger,
	})
	if err != nil {
		det.Close()
		return nil, err
	}
	return a, nil
}

// openBrowser opens url in the desktop browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("failed to open browser", "url", url, "error", err)
		return
	}
	go cmd.Wait()
}
