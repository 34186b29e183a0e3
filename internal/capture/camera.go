// Package capture provides frame acquisition from cameras, video files and
// streams using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrExhausted is returned when a finite source has no more frames.
	ErrExhausted = errors.New("frame source exhausted")
)

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Source identifies a capture source: a device index ("0") or a file path or
// stream URL.
type Source string

// DeviceID returns the device index and true when the source is numeric.
func (s Source) DeviceID() (int, bool) {
	id, err := strconv.Atoi(string(s))
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// IsDevice reports whether the source is a local camera.
func (s Source) IsDevice() bool {
	_, ok := s.DeviceID()
	return ok
}

// cameraImpl manages video capture from a source using GoCV.
type cameraImpl struct {
	source  Source
	width   int
	height  int
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a Camera for the given source with the default
// resolution and FPS.
func NewCamera(source Source) Camera {
	return NewCameraWithSize(source, DefaultWidth, DefaultHeight)
}

// NewCameraWithSize creates a Camera that requests the given resolution from
// devices. File and stream sources keep their native size.
func NewCameraWithSize(source Source, width, height int) Camera {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &cameraImpl{
		source: source,
		width:  width,
		height: height,
		fps:    DefaultFPS,
	}
}

// Open opens the source for capturing frames.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, ok := c.source.DeviceID(); ok {
		capture, err = gocv.OpenVideoCapture(id)
	} else {
		capture, err = gocv.OpenVideoCapture(string(c.source))
	}
	if err != nil {
		return fmt.Errorf("open capture source %q: %w", c.source, err)
	}

	if c.source.IsDevice() {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the source and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame.
// Files and streams report ErrExhausted once reading fails.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		if !c.source.IsDevice() {
			return nil, ErrExhausted
		}
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil && c.source.IsDevice() {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the source is currently open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
