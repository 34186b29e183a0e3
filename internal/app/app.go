// Package app wires capture, detection, sampling, classification,
// stabilization and dispatch into the tonelight pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chroma/tonelight/internal/capture"
	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/sampler"
	"github.com/chroma/tonelight/internal/store"
	"github.com/chroma/tonelight/internal/tone"
)

// Pipeline timing defaults.
const (
	// IdleFPS is the frame rate while the scene is static.
	IdleFPS = 5
	// ActiveFPS is the frame rate while the scene is changing.
	ActiveFPS = 15
	// IdleTimeout is how long the scene must stay static before the
	// pipeline drops back to IdleFPS.
	IdleTimeout = 2 * time.Second
)

// Slot modes.
const (
	// SlotSingle feeds the largest face of each frame into one global slot.
	SlotSingle = "single"
	// SlotPositional gives each face position (left to right) its own slot.
	SlotPositional = "positional"
)

// SingleSlot is the slot key used in single mode.
const SingleSlot = "0"

// ManualSlot is the slot key of commands sent through Send.
const ManualSlot = "manual"

// ErrRunning is returned by Run when the pipeline is already running.
var ErrRunning = errors.New("pipeline already running")

// Options holds the collaborators and settings of an App.
type Options struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Sampler    *sampler.Sampler
	Classifier *tone.Classifier
	SlotConfig tone.SlotConfig
	Policy     *dispatch.Policy
	Sinks      []dispatch.Sink
	Dispatch   dispatch.Options
	Store      *store.Store // optional

	SlotMode    string
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration
	// SceneThreshold enables scene gating when positive: detection only
	// runs after the frame changes by this percentage of pixels.
	SceneThreshold float64
	// ResetCommand is dispatched after Reset when non-empty.
	ResetCommand string
	// Disabled starts the pipeline paused when the store has no recorded
	// state.
	Disabled bool
	// Preview keeps an annotated JPEG of the latest processed frame.
	Preview bool
	Logger  *slog.Logger
}

// App is the pipeline orchestrator. It owns the stabilization slots, the
// dispatch queue and the capture loop.
type App struct {
	opts       Options
	logger     *slog.Logger
	camera     capture.Camera
	detector   detector.Detector
	sampler    *sampler.Sampler
	classifier *tone.Classifier
	tracker    *tone.Tracker
	policy     *dispatch.Policy
	dispatcher *dispatch.Dispatcher
	scene      *capture.SceneGate
	store      *store.Store

	enabled atomic.Bool
	active  atomic.Bool
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc

	frames      atomic.Uint64
	faces       atomic.Uint64
	skipped     atomic.Uint64
	frameErrors atomic.Uint64
	started     time.Time

	listenersMu  sync.RWMutex
	listeners    map[int]func(Event)
	nextListener int

	previewMu sync.RWMutex
	preview   []byte

	closeOnce sync.Once
}

// New creates an App. The camera is opened by Run, everything else is
// ready on return.
func New(opts Options) (*App, error) {
	if opts.Camera == nil {
		return nil, errors.New("camera is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Classifier == nil {
		return nil, tone.ErrEmptyPalette
	}
	if opts.Policy == nil {
		return nil, errors.New("dispatch policy is required")
	}
	if opts.Sampler == nil {
		opts.Sampler = sampler.New()
	}
	if err := opts.Sampler.Validate(); err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if opts.SlotConfig.Window == 0 {
		opts.SlotConfig = tone.DefaultSlotConfig()
	}
	if err := opts.SlotConfig.Validate(); err != nil {
		return nil, fmt.Errorf("stabilizer: %w", err)
	}
	switch opts.SlotMode {
	case "":
		opts.SlotMode = SlotSingle
	case SlotSingle, SlotPositional:
	default:
		return nil, fmt.Errorf("unknown slot mode %q", opts.SlotMode)
	}
	if opts.IdleFPS <= 0 {
		opts.IdleFPS = IdleFPS
	}
	if opts.ActiveFPS <= 0 {
		opts.ActiveFPS = ActiveFPS
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = IdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a := &App{
		opts:       opts,
		logger:     opts.Logger,
		camera:     opts.Camera,
		detector:   opts.Detector,
		sampler:    opts.Sampler,
		classifier: opts.Classifier,
		tracker:    tone.NewTracker(opts.SlotConfig),
		policy:     opts.Policy,
		store:      opts.Store,
		listeners:  make(map[int]func(Event)),
		started:    time.Now(),
	}

	if opts.SceneThreshold > 0 {
		a.scene = capture.NewSceneGate(opts.SceneThreshold)
	}

	enabled := !opts.Disabled
	if a.store != nil {
		enabled = a.store.Settings().Bool(store.SettingEnabled, enabled)
	}
	a.enabled.Store(enabled)

	dopts := opts.Dispatch
	if dopts.Logger == nil {
		dopts.Logger = a.logger
	}
	hook := dopts.OnResult
	dopts.OnResult = func(r dispatch.Result) {
		a.recordResult(r)
		if hook != nil {
			hook(r)
		}
	}
	a.dispatcher = dispatch.NewDispatcher(dopts, opts.Sinks...)

	return a, nil
}

// Run opens the camera and processes frames until ctx is done, Stop is
// called or the source is exhausted. The camera is closed before Run
// returns.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer a.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
		cancel()
	}()

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer func() {
		if err := a.camera.Close(); err != nil {
			a.logger.Warn("failed to close camera", "error", err)
		}
	}()

	return a.loop(ctx)
}

// Stop ends a running pipeline. It does not wait for Run to return.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// IsRunning reports whether Run is active.
func (a *App) IsRunning() bool {
	return a.running.Load()
}

// SetEnabled pauses or resumes frame processing and persists the choice.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled {
		return
	}
	if a.store != nil {
		if err := a.store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			a.logger.Warn("failed to persist enabled setting", "error", err)
		}
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	if enabled {
		a.rearmScene()
	}
	a.logger.Info("detection " + state)
	a.emit(Event{Type: EventEnabled, State: state})
}

// rearmScene makes the next frame count as a scene change so an idle loop
// goes active and collects a new window.
func (a *App) rearmScene() {
	if a.scene != nil {
		a.scene.Reset()
	}
}

// IsEnabled reports whether frames are being processed.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Reset clears every stabilization slot and the dispatch history, then
// sends the reset command if one is configured.
func (a *App) Reset() {
	a.tracker.Reset()
	a.policy.ResetAll()
	a.rearmScene()
	a.logger.Info("stabilization reset")
	a.emit(Event{Type: EventReset})

	if a.opts.ResetCommand != "" {
		a.dispatcher.Enqueue(dispatch.NewJob(ManualSlot, "", a.opts.ResetCommand))
	}
}

// ResetSlot clears one slot.
func (a *App) ResetSlot(key string) {
	a.tracker.ResetSlot(key)
	a.policy.Reset(key)
	a.rearmScene()
	a.logger.Info("slot reset", "slot", key)
	a.emit(Event{Type: EventReset, Slot: key})
}

// Send queues a command outside the stabilization path.
func (a *App) Send(command string) error {
	if command == "" {
		return errors.New("command is required")
	}
	if !a.dispatcher.Enqueue(dispatch.NewJob(ManualSlot, "", command)) {
		return fmt.Errorf("command %q dropped", command)
	}
	return nil
}

// Deliver sends a command synchronously to every sink.
func (a *App) Deliver(ctx context.Context, command string) ([]dispatch.Result, error) {
	results, err := a.dispatcher.Deliver(ctx, dispatch.NewJob(ManualSlot, "", command))
	for _, r := range results {
		a.recordResult(r)
	}
	return results, err
}

// Slots returns the state of every stabilization slot.
func (a *App) Slots() []tone.SlotSnapshot {
	return a.tracker.Snapshot()
}

// Policy returns the dispatch policy.
func (a *App) Policy() *dispatch.Policy {
	return a.policy
}

// Classifier returns the classifier.
func (a *App) Classifier() *tone.Classifier {
	return a.classifier
}

// Store returns the store, which may be nil.
func (a *App) Store() *store.Store {
	return a.store
}

// Close releases the detector, scene gate and dispatcher. Queued commands
// are delivered first.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Stop()
		a.dispatcher.Close()
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("failed to close detector", "error", err)
		}
		if a.scene != nil {
			a.scene.Close()
		}
	})
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running      bool                `json:"running"`
	Enabled      bool                `json:"enabled"`
	Active       bool                `json:"active"`
	SlotMode     string              `json:"slot_mode"`
	DispatchMode string              `json:"dispatch_mode"`
	Frames       uint64              `json:"frames"`
	Faces        uint64              `json:"faces"`
	Skipped      uint64              `json:"skipped"`
	FrameErrors  uint64              `json:"frame_errors"`
	Uptime       string              `json:"uptime"`
	Palette      PaletteInfo         `json:"palette"`
	Slots        []tone.SlotSnapshot `json:"slots"`
	Sinks        []string            `json:"sinks"`
	Dispatch     dispatch.Stats      `json:"dispatch"`
}

// PaletteInfo summarizes the loaded palette.
type PaletteInfo struct {
	Shape   string   `json:"shape"`
	Labels  []string `json:"labels"`
	Samples int      `json:"samples"`
}

// Status returns the current pipeline status.
func (a *App) Status() Status {
	p := a.classifier.Palette()
	return Status{
		Running:      a.IsRunning(),
		Enabled:      a.IsEnabled(),
		Active:       a.active.Load(),
		SlotMode:     a.opts.SlotMode,
		DispatchMode: string(a.policy.Mode()),
		Frames:       a.frames.Load(),
		Faces:        a.faces.Load(),
		Skipped:      a.skipped.Load(),
		FrameErrors:  a.frameErrors.Load(),
		Uptime:       time.Since(a.started).Round(time.Second).String(),
		Palette: PaletteInfo{
			Shape:   string(p.Shape()),
			Labels:  p.Labels(),
			Samples: p.Len(),
		},
		Slots:    a.tracker.Snapshot(),
		Sinks:    a.dispatcher.Sinks(),
		Dispatch: a.dispatcher.Stats(),
	}
}

// recordResult stores and publishes the outcome of one sink delivery.
func (a *App) recordResult(r dispatch.Result) {
	ev := Event{
		Type:    EventDispatched,
		Slot:    r.Job.Slot,
		Label:   r.Job.Label,
		Command: r.Job.Command,
		Sink:    r.Sink,
	}
	if r.Err != nil {
		ev.Type = EventDispatchFailed
		ev.Error = r.Err.Error()
	}
	a.emit(ev)

	if a.store == nil {
		return
	}
	rec := &store.DispatchRecord{
		JobID:      r.Job.ID,
		Slot:       r.Job.Slot,
		Label:      r.Job.Label,
		Command:    r.Job.Command,
		Sink:       r.Sink,
		Attempts:   r.Attempts,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if err := a.store.Dispatches().Create(rec); err != nil {
		a.logger.Warn("failed to record dispatch", "error", err, "command", r.Job.Command)
	}
}
