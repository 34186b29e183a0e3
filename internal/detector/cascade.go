package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

const cascadeFile = "haarcascade_frontalface_default.xml"

// CascadeDetector finds frontal faces with an OpenCV Haar cascade.
type CascadeDetector struct {
	cfg        Config
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
	closed     bool
}

// NewCascadeDetector loads the cascade named in cfg, or searches the usual
// install locations when CascadePath is empty.
func NewCascadeDetector(cfg Config) (*CascadeDetector, error) {
	def := DefaultConfig()
	if cfg.Downscale <= 0 || cfg.Downscale > 1 {
		cfg.Downscale = def.Downscale
	}
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = def.ScaleFactor
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = def.MinNeighbors
	}

	path := cfg.CascadePath
	if path == "" {
		path = findCascade()
	}
	if path == "" {
		return nil, errors.New(cascadeFile + " not found; set detector.cascade_path")
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", path)
	}
	cfg.CascadePath = path

	return &CascadeDetector{cfg: cfg, classifier: classifier}, nil
}

// Detect returns face regions in full-frame coordinates, ordered by left edge.
func (d *CascadeDetector) Detect(frame *gocv.Mat) ([]FaceRegion, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetect)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: detector is closed", ErrDetect)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}

	small := gray
	if d.cfg.Downscale < 1 {
		small = gocv.NewMat()
		defer small.Close()
		gocv.Resize(gray, &small, image.Point{}, d.cfg.Downscale, d.cfg.Downscale, gocv.InterpolationLinear)
	}
	gocv.EqualizeHist(small, &small)

	minSide := int(float64(d.cfg.MinFaceSize) * d.cfg.Downscale)
	rects := d.classifier.DetectMultiScaleWithParams(
		small,
		d.cfg.ScaleFactor,
		d.cfg.MinNeighbors,
		0,
		image.Pt(minSide, minSide),
		image.Point{},
	)

	inv := 1 / d.cfg.Downscale
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	faces := make([]FaceRegion, 0, len(rects))
	for _, r := range rects {
		f := FromRect(r).Scale(inv)
		f = FromRect(f.Rect().Intersect(bounds))
		if f.Valid() {
			faces = append(faces, f)
		}
	}

	// Larger faces first when capping, then left to right.
	if d.cfg.MaxFaces > 0 && len(faces) > d.cfg.MaxFaces {
		sort.Slice(faces, func(i, j int) bool {
			return faces[i].Width()*faces[i].Height() > faces[j].Width()*faces[j].Height()
		})
		faces = faces[:d.cfg.MaxFaces]
	}
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Left < faces[j].Left
	})
	return faces, nil
}

// Close releases the cascade.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

// findCascade looks for the frontal face cascade next to the binary, in the
// working directory and in the usual OpenCV data directories.
func findCascade() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("data", cascadeFile),
		cascadeFile,
		filepath.Join(execDir, "data", cascadeFile),
		filepath.Join(os.Getenv("HOME"), ".tonelight", cascadeFile),
		filepath.Join("/usr/local/share/opencv4/haarcascades", cascadeFile),
		filepath.Join("/usr/share/opencv4/haarcascades", cascadeFile),
		filepath.Join("/opt/homebrew/share/opencv4/haarcascades", cascadeFile),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
