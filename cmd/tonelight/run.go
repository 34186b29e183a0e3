package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/control"
	"github.com/chroma/tonelight/internal/server"
	"github.com/chroma/tonelight/internal/tray"
)

var (
	runSource    string
	runAddr      string
	runStaticDir string
	runTray      bool
	runNoControl bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture pipeline",
	Long: `Run opens the capture source and classifies faces until interrupted.

Finalized tones are sent to the configured sinks. The HTTP API, the MQTT
control plane and the system tray are started when configured.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runSource, "source", "s", "", "camera index, video file or stream URL")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address (empty string disables the server)")
	runCmd.Flags().StringVar(&runStaticDir, "static", "", "directory served at / by the HTTP server")
	runCmd.Flags().BoolVar(&runTray, "tray", false, "show the system tray icon")
	runCmd.Flags().BoolVar(&runNoControl, "no-control", false, "do not subscribe to the MQTT control topic")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("source") {
		cfg.Capture.Source = runSource
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = runAddr
	}
	if cmd.Flags().Changed("tray") {
		cfg.Tray = runTray
	}

	conn, err := connectBroker()
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	sinks, err := buildSinks(conn)
	if err != nil {
		return err
	}

	a, err := buildApp(appConfig{sinks: sinks, preview: cfg.Server.Addr != ""})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- a.Run(ctx)
		cancel()
	}()

	serverDone := make(chan error, 1)
	if cfg.Server.Addr != "" {
		srv := server.New(server.Config{
			StaticDir: runStaticDir,
			App:       a,
			Store:     db,
			Logger:    logger,
		})
		go func() {
			serverDone <- srv.ListenAndServe(ctx, cfg.Server.Addr)
			cancel()
		}()
	} else {
		close(serverDone)
	}

	if conn != nil && !runNoControl {
		handler := control.NewHandler(conn.Client, control.Options{
			ControlTopic:  cfg.MQTT.ControlTopic,
			ResponseTopic: cfg.MQTT.ResponseTopic,
			QoS:           cfg.MQTT.QoS,
			Logger:        logger,
		}, controlCallbacks(a, cancel))
		if err := handler.Start(ctx); err != nil {
			logger.Warn("control plane unavailable", "error", err)
		} else {
			defer handler.Stop()
		}
	}

	if cfg.Tray {
		runTrayUntilDone(ctx, a, cancel)
	}

	runErr := <-runDone
	serverErr := <-serverDone
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := errors.Join(runErr, serverErr); err != nil {
		return err
	}

	logger.Info("pipeline stopped", "frames", a.Status().Frames)
	return nil
}

// controlCallbacks maps control plane commands onto the app.
func controlCallbacks(a *app.App, stop context.CancelFunc) control.Callbacks {
	return control.Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return statusData(a.Status())
		},
		OnReset: func() error {
			a.Reset()
			return nil
		},
		OnResetSlot: func(slot string) error {
			a.ResetSlot(slot)
			return nil
		},
		OnEnable: func() error {
			a.SetEnabled(true)
			return nil
		},
		OnDisable: func() error {
			a.SetEnabled(false)
			return nil
		},
		OnSend: a.Send,
		OnStop: func() error {
			stop()
			return nil
		},
	}
}

func statusData(s app.Status) map[string]interface{} {
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return m
}

// runTrayUntilDone shows the tray on the calling goroutine until ctx is
// done or quit is clicked.
func runTrayUntilDone(ctx context.Context, a *app.App, cancel context.CancelFunc) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnReset(a.Reset)
	t.OnQuit(cancel)
	if cfg.Server.Addr != "" {
		url := "http://" + browserAddr(cfg.Server.Addr)
		t.OnOpen(func() { openBrowser(url) })
	}

	unsubscribe := a.Subscribe(func(ev app.Event) {
		switch ev.Type {
		case app.EventDispatched:
			t.SetLastTone(ev.Label, ev.Command)
		case app.EventMode:
			t.SetMode(ev.State)
		case app.EventEnabled:
			t.SetEnabled(ev.State == "enabled")
		}
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
	cancel()
}

// browserAddr turns a listen address into one a browser can reach.
func browserAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return addr
}
