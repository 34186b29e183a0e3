package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Scene change constants
const (
	// sceneBlurSize is the Gaussian kernel applied before differencing.
	sceneBlurSize = 21
	// scenePixelDelta is the per-pixel intensity change counted as different.
	scenePixelDelta = 25
	// sceneCompareWidth is the width frames are shrunk to before comparison.
	sceneCompareWidth = 160
)

// SceneGate reports whether a frame differs enough from the previous one to
// be worth running face detection on while the pipeline is idle.
type SceneGate struct {
	threshold float64
	prev      gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewSceneGate creates a gate. threshold is the percentage of pixels that
// must change, so 1.0 means 1%.
func NewSceneGate(threshold float64) *SceneGate {
	if threshold <= 0 {
		threshold = 1.0
	}
	return &SceneGate{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Changed compares frame with the previously seen frame and returns whether
// the change exceeds the threshold and the changed percentage. The first
// frame after construction or Reset always counts as changed.
func (g *SceneGate) Changed(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	small := gocv.NewMat()
	defer small.Close()
	if gray.Cols() > sceneCompareWidth {
		h := gray.Rows() * sceneCompareWidth / gray.Cols()
		gocv.Resize(gray, &small, image.Pt(sceneCompareWidth, h), 0, 0, gocv.InterpolationArea)
	} else {
		gray.CopyTo(&small)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(small, &blurred, image.Pt(sceneBlurSize, sceneBlurSize), 0, 0, gocv.BorderDefault)

	if !g.primed || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() {
		blurred.CopyTo(&g.prev)
		g.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, scenePixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0
	blurred.CopyTo(&g.prev)

	return changed > g.threshold, changed
}

// Reset forgets the previous frame.
func (g *SceneGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
}

// Close releases the stored frame. The gate may be reused after Close.
func (g *SceneGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prev.Close()
	g.prev = gocv.NewMat()
	g.primed = false
}
