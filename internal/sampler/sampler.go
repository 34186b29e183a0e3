// Package sampler extracts a representative skin color from a face region.
package sampler

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/tone"
)

// Default forehead band, as fractions of the face height from its top edge.
const (
	DefaultBandTop    = 0.15
	DefaultBandBottom = 0.40
)

var (
	// ErrRegionOutOfBounds is returned when the band is empty after clamping
	// to the frame or the face region is not a valid rectangle.
	ErrRegionOutOfBounds = errors.New("sample region out of bounds")

	// ErrUnsupportedFrame is returned for empty frames or frames with fewer
	// than three channels.
	ErrUnsupportedFrame = errors.New("unsupported frame")
)

// ChannelOrder is the channel layout of incoming frames.
type ChannelOrder string

const (
	OrderBGR ChannelOrder = "bgr"
	OrderRGB ChannelOrder = "rgb"
)

// Sampler averages a horizontal band of each face region.
// It holds no mutable state and is safe for concurrent use.
type Sampler struct {
	BandTop    float64
	BandBottom float64
	Order      ChannelOrder
}

// New returns a Sampler with the default forehead band for BGR frames.
func New() *Sampler {
	return &Sampler{
		BandTop:    DefaultBandTop,
		BandBottom: DefaultBandBottom,
		Order:      OrderBGR,
	}
}

// Validate checks the band fractions and channel order.
func (s *Sampler) Validate() error {
	if s.BandTop < 0 || s.BandBottom > 1 || s.BandTop >= s.BandBottom {
		return fmt.Errorf("band must satisfy 0 <= top < bottom <= 1, got [%v, %v)", s.BandTop, s.BandBottom)
	}
	switch s.Order {
	case OrderBGR, OrderRGB, "":
		return nil
	default:
		return fmt.Errorf("unknown channel order %q", s.Order)
	}
}

// Band returns the pixel rectangle sampled for region, clamped to a frame of
// the given size. The result may be empty.
func (s *Sampler) Band(region detector.FaceRegion, cols, rows int) image.Rectangle {
	h := float64(region.Height())
	top := region.Top + int(math.Floor(h*s.BandTop))
	bottom := region.Top + int(math.Floor(h*s.BandBottom))

	band := image.Rect(region.Left, top, region.Right, bottom)
	return band.Intersect(image.Rect(0, 0, cols, rows))
}

// Sample returns the mean color of the band in canonical RGB order.
func (s *Sampler) Sample(frame gocv.Mat, region detector.FaceRegion) (tone.ColorSample, error) {
	if frame.Empty() || frame.Channels() < 3 {
		return tone.ColorSample{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFrame, frame.Channels())
	}
	if !region.Valid() {
		return tone.ColorSample{}, fmt.Errorf("%w: invalid region %+v", ErrRegionOutOfBounds, region)
	}

	band := s.Band(region, frame.Cols(), frame.Rows())
	if band.Empty() {
		return tone.ColorSample{}, fmt.Errorf("%w: region %+v in %dx%d frame", ErrRegionOutOfBounds, region, frame.Cols(), frame.Rows())
	}

	roi := frame.Region(band)
	defer roi.Close()
	mean := roi.Mean()

	first, second, third := channel(mean.Val1), channel(mean.Val2), channel(mean.Val3)
	if s.Order == OrderRGB {
		return tone.ColorSample{R: first, G: second, B: third}, nil
	}
	return tone.ColorSample{R: third, G: second, B: first}, nil
}

func channel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
