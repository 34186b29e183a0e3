package sampler

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/tone"
)

// bgrFrame builds a solid frame from an RGB color.
func bgrFrame(rows, cols int, c tone.ColorSample) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		rows, cols, gocv.MatTypeCV8UC3,
	)
}

func TestSampler_UniformRegion(t *testing.T) {
	want := tone.ColorSample{R: 198, G: 160, B: 120}
	frame := bgrFrame(200, 200, want)
	defer frame.Close()

	s := New()
	got, err := s.Sample(frame, detector.FaceRegion{Top: 20, Right: 150, Bottom: 180, Left: 50})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got != want {
		t.Errorf("Sample() = %v, want %v", got, want)
	}
}

func TestSampler_RGBOrder(t *testing.T) {
	// Stored as-is, so with RGB order the first channel is red.
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 50, 50, gocv.MatTypeCV8UC3)
	defer frame.Close()

	s := New()
	s.Order = OrderRGB
	got, err := s.Sample(frame, detector.FaceRegion{Top: 0, Right: 50, Bottom: 50, Left: 0})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got != (tone.ColorSample{R: 10, G: 20, B: 30}) {
		t.Errorf("Sample() = %v, want (10,20,30)", got)
	}
}

func TestSampler_OnlyBandIsSampled(t *testing.T) {
	frame := bgrFrame(100, 100, tone.ColorSample{R: 0, G: 0, B: 0})
	defer frame.Close()

	// Paint the band rows [15, 40) of a 0..100 face white.
	band := frame.Region(image.Rect(0, 15, 100, 40))
	band.SetTo(gocv.NewScalar(255, 255, 255, 0))
	band.Close()

	s := New()
	got, err := s.Sample(frame, detector.FaceRegion{Top: 0, Right: 100, Bottom: 100, Left: 0})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got != (tone.ColorSample{R: 255, G: 255, B: 255}) {
		t.Errorf("Sample() = %v, want white band only", got)
	}
}

func TestSampler_RoundsMean(t *testing.T) {
	frame := bgrFrame(10, 10, tone.ColorSample{R: 100, G: 100, B: 100})
	defer frame.Close()

	// Left half 100, right half 101: mean 100.5 rounds to 101.
	right := frame.Region(image.Rect(5, 0, 10, 10))
	right.SetTo(gocv.NewScalar(101, 101, 101, 0))
	right.Close()

	s := &Sampler{BandTop: 0, BandBottom: 1, Order: OrderBGR}
	got, err := s.Sample(frame, detector.FaceRegion{Top: 0, Right: 10, Bottom: 10, Left: 0})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got.R != 101 {
		t.Errorf("expected mean 100.5 to round to 101, got %d", got.R)
	}
}

func TestSampler_ClampsToFrame(t *testing.T) {
	frame := bgrFrame(100, 100, tone.ColorSample{R: 50, G: 60, B: 70})
	defer frame.Close()

	s := New()
	got, err := s.Sample(frame, detector.FaceRegion{Top: -20, Right: 130, Bottom: 80, Left: 60})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got != (tone.ColorSample{R: 50, G: 60, B: 70}) {
		t.Errorf("Sample() = %v", got)
	}
}

func TestSampler_Errors(t *testing.T) {
	frame := bgrFrame(100, 100, tone.ColorSample{R: 1, G: 2, B: 3})
	defer frame.Close()
	gray := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8U)
	defer gray.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	tests := []struct {
		name    string
		frame   gocv.Mat
		region  detector.FaceRegion
		wantErr error
	}{
		{"outside frame", frame, detector.FaceRegion{Top: 200, Right: 300, Bottom: 300, Left: 200}, ErrRegionOutOfBounds},
		{"inverted rows", frame, detector.FaceRegion{Top: 50, Right: 60, Bottom: 10, Left: 10}, ErrRegionOutOfBounds},
		{"zero width", frame, detector.FaceRegion{Top: 0, Right: 10, Bottom: 50, Left: 10}, ErrRegionOutOfBounds},
		{"band collapses", frame, detector.FaceRegion{Top: 0, Right: 50, Bottom: 2, Left: 0}, ErrRegionOutOfBounds},
		{"grayscale frame", gray, detector.FaceRegion{Top: 0, Right: 50, Bottom: 50, Left: 0}, ErrUnsupportedFrame},
		{"empty frame", empty, detector.FaceRegion{Top: 0, Right: 50, Bottom: 50, Left: 0}, ErrUnsupportedFrame},
	}

	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Sample(tt.frame, tt.region)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSampler_Band(t *testing.T) {
	s := New()
	got := s.Band(detector.FaceRegion{Top: 100, Right: 300, Bottom: 300, Left: 200}, 640, 480)
	// h=200: rows [100+30, 100+80)
	want := image.Rect(200, 130, 300, 180)
	if got != want {
		t.Errorf("Band() = %v, want %v", got, want)
	}
}

func TestSampler_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Sampler
		wantErr bool
	}{
		{"default", *New(), false},
		{"whole face", Sampler{BandTop: 0, BandBottom: 1}, false},
		{"inverted", Sampler{BandTop: 0.5, BandBottom: 0.2}, true},
		{"negative", Sampler{BandTop: -0.1, BandBottom: 0.2}, true},
		{"above one", Sampler{BandTop: 0.1, BandBottom: 1.2}, true},
		{"bad order", Sampler{BandTop: 0.1, BandBottom: 0.2, Order: "hsv"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
