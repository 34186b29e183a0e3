// Package detector provides face detection interfaces and types for skin tone sampling.
package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrDetect wraps failures reported by a detector for a single frame.
var ErrDetect = errors.New("face detection failed")

// FaceRegion is a face rectangle in frame pixel coordinates.
type FaceRegion struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// FromRect converts an image rectangle to a FaceRegion.
func FromRect(r image.Rectangle) FaceRegion {
	return FaceRegion{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect returns the region as an image rectangle.
func (f FaceRegion) Rect() image.Rectangle {
	return image.Rect(f.Left, f.Top, f.Right, f.Bottom)
}

// Valid reports whether top < bottom and left < right.
func (f FaceRegion) Valid() bool {
	return f.Top < f.Bottom && f.Left < f.Right
}

// Width returns right - left.
func (f FaceRegion) Width() int {
	return f.Right - f.Left
}

// Height returns bottom - top.
func (f FaceRegion) Height() int {
	return f.Bottom - f.Top
}

// Scale multiplies every coordinate by factor, rounding down.
func (f FaceRegion) Scale(factor float64) FaceRegion {
	return FaceRegion{
		Top:    int(float64(f.Top) * factor),
		Right:  int(float64(f.Right) * factor),
		Bottom: int(float64(f.Bottom) * factor),
		Left:   int(float64(f.Left) * factor),
	}
}

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected face regions.
	// Returns an empty slice if no faces are detected. Ordering is not
	// stable across calls.
	Detect(frame *gocv.Mat) ([]FaceRegion, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// CascadePath is the Haar cascade XML file. When empty common install
	// locations are searched.
	CascadePath string

	// Downscale shrinks frames before detection (0.5 detects at half size).
	// Regions are scaled back to full-frame coordinates. 1 disables it.
	Downscale float64

	// ScaleFactor and MinNeighbors tune the cascade search.
	ScaleFactor  float64
	MinNeighbors int

	// MinFaceSize is the smallest face side in full-frame pixels.
	MinFaceSize int

	// MaxFaces caps the number of regions returned (0 = unlimited).
	MaxFaces int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Downscale:    0.5,
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinFaceSize:  60,
		MaxFaces:     4,
	}
}
