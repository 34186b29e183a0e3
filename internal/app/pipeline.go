package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/chroma/tonelight/internal/capture"
	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/sampler"
	"github.com/chroma/tonelight/internal/tone"
)

// FaceResult is the outcome of processing one detected face.
type FaceResult struct {
	Index    int                      `json:"index"`
	Slot     string                   `json:"slot"`
	Region   detector.FaceRegion      `json:"region"`
	Event    tone.ClassificationEvent `json:"event"`
	Decision *tone.Decision           `json:"decision,omitempty"`
	Command  string                   `json:"command,omitempty"`
	Err      error                    `json:"-"`
}

// loop reads frames at the idle or active rate until ctx is done or the
// source runs out.
//
// With scene gating:
//  1. start idle at IdleFPS
//  2. on scene change switch to ActiveFPS and run detection
//  3. after IdleTimeout without change switch back to IdleFPS
//
// Without gating every frame is processed at ActiveFPS.
func (a *App) loop(ctx context.Context) error {
	fps := a.opts.ActiveFPS
	if a.scene != nil {
		fps = a.opts.IdleFPS
		a.scene.Reset()
	} else {
		a.active.Store(true)
	}
	a.camera.SetFPS(fps)

	ticker := time.NewTicker(frameInterval(fps))
	defer ticker.Stop()

	a.logger.Info("pipeline started",
		"fps", fps,
		"slot_mode", a.opts.SlotMode,
		"dispatch_mode", a.policy.Mode(),
		"scene_gating", a.scene != nil)

	lastChange := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("pipeline stopped")
			return nil
		case <-ticker.C:
		}

		if !a.IsEnabled() {
			continue
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrExhausted) {
				a.logger.Info("frame source exhausted, stopping pipeline")
				return nil
			}
			a.frameErrors.Add(1)
			a.logger.Warn("failed to read frame", "error", err)
			continue
		}

		if a.scene != nil {
			changed, pct := a.scene.Changed(frame)
			switch {
			case changed:
				lastChange = time.Now()
				if !a.active.Load() {
					a.setActive(true, ticker)
					a.logger.Debug("scene changed", "percent", pct)
				}
			case a.active.Load() && time.Since(lastChange) > a.opts.IdleTimeout:
				a.setActive(false, ticker)
			}

			if !a.active.Load() {
				frame.Close()
				continue
			}
		}

		if _, err := a.ProcessFrame(frame); err != nil {
			a.frameErrors.Add(1)
			a.logger.Warn("frame skipped", "error", err)
		}
		frame.Close()
	}
}

func (a *App) setActive(active bool, ticker *time.Ticker) {
	a.active.Store(active)

	fps, state := a.opts.IdleFPS, "idle"
	if active {
		fps, state = a.opts.ActiveFPS, "active"
	}
	a.camera.SetFPS(fps)
	ticker.Reset(frameInterval(fps))

	a.logger.Info("switched to "+state+" mode", "fps", fps)
	a.emit(Event{Type: EventMode, State: state})
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = IdleFPS
	}
	return time.Second / time.Duration(fps)
}

// ProcessFrame runs detection on frame, samples and classifies every face
// in parallel, then feeds the labels to their slots in face order and
// queues any resulting commands. Per-face failures are reported in the
// results; the returned error is only set when detection fails.
func (a *App) ProcessFrame(frame *gocv.Mat) ([]FaceResult, error) {
	index := a.frames.Add(1)

	regions, err := a.detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	switch {
	case a.opts.SlotMode == SlotSingle && len(regions) > 1:
		regions = []detector.FaceRegion{largest(regions)}
	case a.opts.SlotMode == SlotPositional:
		sort.SliceStable(regions, func(i, j int) bool {
			return regions[i].Left < regions[j].Left
		})
	}

	results := make([]FaceResult, len(regions))
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region detector.FaceRegion) {
			defer wg.Done()
			results[i] = a.classifyFace(frame, index, i, region)
		}(i, region)
	}
	wg.Wait()

	for i := range results {
		a.stabilize(&results[i])
	}

	if a.opts.Preview {
		a.updatePreview(frame, results)
	}
	return results, nil
}

func (a *App) classifyFace(frame *gocv.Mat, index uint64, i int, region detector.FaceRegion) FaceResult {
	res := FaceResult{Index: i, Slot: a.slotKey(i), Region: region}

	sample, err := a.sampler.Sample(*frame, region)
	if err != nil {
		res.Err = err
		return res
	}
	ev, err := a.classifier.Classify(sample)
	if err != nil {
		res.Err = err
		return res
	}
	ev.Frame = index
	res.Event = ev
	return res
}

// stabilize pushes a classified face into its slot and dispatches the
// finalized label when the policy allows it.
func (a *App) stabilize(res *FaceResult) {
	if res.Err != nil {
		if errors.Is(res.Err, sampler.ErrRegionOutOfBounds) {
			a.skipped.Add(1)
			a.logger.Debug("face skipped", "slot", res.Slot, "error", res.Err)
		} else {
			a.logger.Warn("face classification failed", "slot", res.Slot, "error", res.Err)
		}
		return
	}

	a.faces.Add(1)
	sample, region := res.Event.Sample, res.Region
	a.emit(Event{
		Type:     EventClassified,
		Slot:     res.Slot,
		Label:    res.Event.Label,
		Distance: res.Event.Distance,
		Sample:   &sample,
		Region:   &region,
	})

	d, ok := a.tracker.Push(res.Slot, res.Event.Label)
	if !ok {
		return
	}
	res.Decision = &d
	a.emit(Event{Type: EventFinalized, Slot: res.Slot, Label: d.Label, Decision: &d})

	cmd, ok := a.policy.Decide(res.Slot, d.Label)
	if !ok {
		return
	}
	res.Command = cmd

	a.logger.Info("tone finalized",
		"slot", res.Slot,
		"label", d.Label,
		"votes", fmt.Sprintf("%d/%d", d.Votes, d.Total),
		"command", cmd)
	if !a.dispatcher.Enqueue(dispatch.NewJob(res.Slot, d.Label, cmd)) {
		// Let the slot collect a fresh window and try again.
		a.policy.Retract(res.Slot, cmd)
		a.tracker.ResetSlot(res.Slot)
		res.Command = ""
		a.logger.Error("dispatch dropped, slot rearmed",
			"slot", res.Slot,
			"label", d.Label,
			"command", cmd)
	}
}

func (a *App) slotKey(i int) string {
	if a.opts.SlotMode == SlotPositional {
		return fmt.Sprintf("%d", i)
	}
	return SingleSlot
}

// largest returns the region with the biggest area, the first on ties.
func largest(regions []detector.FaceRegion) detector.FaceRegion {
	best := regions[0]
	for _, r := range regions[1:] {
		if r.Width()*r.Height() > best.Width()*best.Height() {
			best = r
		}
	}
	return best
}

var (
	faceColor  = color.RGBA{0, 255, 0, 0}
	bandColor  = color.RGBA{255, 160, 0, 0}
	errorColor = color.RGBA{0, 0, 255, 0}
)

// updatePreview draws face boxes, sampled bands and labels onto a copy of
// frame and keeps it as JPEG.
func (a *App) updatePreview(frame *gocv.Mat, results []FaceResult) {
	img := frame.Clone()
	defer img.Close()

	for _, r := range results {
		box := r.Region.Rect()
		if r.Err != nil {
			gocv.Rectangle(&img, box, errorColor, 2)
			continue
		}
		gocv.Rectangle(&img, box, faceColor, 2)
		gocv.Rectangle(&img, a.sampler.Band(r.Region, img.Cols(), img.Rows()), bandColor, 1)

		text := r.Slot + ": " + r.Event.Label
		gocv.PutText(&img, text, image.Pt(box.Min.X, max(box.Min.Y-8, 12)),
			gocv.FontHersheySimplex, 0.5, faceColor, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		a.logger.Debug("failed to encode preview", "error", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.previewMu.Lock()
	a.preview = data
	a.previewMu.Unlock()
}

// Preview returns the latest annotated JPEG frame, if any.
func (a *App) Preview() ([]byte, bool) {
	a.previewMu.RLock()
	defer a.previewMu.RUnlock()
	return a.preview, a.preview != nil
}
