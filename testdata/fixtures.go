// Package testdata provides shared fixtures for tests: the reference
// palette CSV and synthetic frames.
package testdata

import (
	"bytes"
	_ "embed"
	"image"

	"gocv.io/x/gocv"

	"github.com/chroma/tonelight/internal/tone"
)

// MonkCSV is a two-sample-per-tone reference palette of the ten Monk tones.
//
//go:embed monk_skin_tones.csv
var MonkCSV []byte

// MonkPalette parses MonkCSV with the given shape.
func MonkPalette(shape tone.Shape) (*tone.Palette, error) {
	opts := tone.DefaultPaletteOptions()
	opts.Shape = shape
	p, _, err := tone.ReadPalette(bytes.NewReader(MonkCSV), opts)
	return p, err
}

// Frame dimensions of the synthetic frames.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// SolidFrame returns a BGR frame filled with c. The caller closes it.
func SolidFrame(c tone.ColorSample) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(scalar(c), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
}

// PaintRegion fills r of frame with c.
func PaintRegion(frame *gocv.Mat, r image.Rectangle, c tone.ColorSample) {
	region := frame.Region(r)
	defer region.Close()
	region.SetTo(scalar(c))
}

func scalar(c tone.ColorSample) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
