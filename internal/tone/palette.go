package tone

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrEmptyPalette is returned when a palette has no reference points.
var ErrEmptyPalette = errors.New("palette has no reference points")

// Shape selects how reference samples are organized per label.
type Shape string

const (
	// ShapeMultiSample keeps every reference sample of a label.
	ShapeMultiSample Shape = "multi"
	// ShapeCentroid keeps one averaged sample per label.
	ShapeCentroid Shape = "centroid"
)

// DataFormatError reports a malformed row in the reference data.
type DataFormatError struct {
	Line   int
	Column string
	Value  string
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("reference data line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("reference data line %d, column %s: %s (value %q)", e.Line, e.Column, e.Reason, e.Value)
}

// Palette is an immutable table of labeled reference colors.
// Labels keep the order in which they were first loaded.
type Palette struct {
	shape   Shape
	labels  []string
	samples map[string][]ColorSample
}

// NewPalette builds a multi-sample palette from reference points in order.
func NewPalette(points []ReferencePoint) (*Palette, error) {
	if len(points) == 0 {
		return nil, ErrEmptyPalette
	}

	p := &Palette{
		shape:   ShapeMultiSample,
		samples: make(map[string][]ColorSample),
	}
	for _, pt := range points {
		if pt.Label == "" {
			return nil, fmt.Errorf("reference point with empty label")
		}
		if _, ok := p.samples[pt.Label]; !ok {
			p.labels = append(p.labels, pt.Label)
		}
		p.samples[pt.Label] = append(p.samples[pt.Label], pt.Sample)
	}
	return p, nil
}

// Shape returns the lookup shape of the palette.
func (p *Palette) Shape() Shape {
	return p.shape
}

// Labels returns the labels in load order.
func (p *Palette) Labels() []string {
	out := make([]string, len(p.labels))
	copy(out, p.labels)
	return out
}

// Samples returns a copy of the reference samples for a label.
func (p *Palette) Samples(label string) []ColorSample {
	s := p.samples[label]
	out := make([]ColorSample, len(s))
	copy(out, s)
	return out
}

// Len returns the number of reference samples across all labels.
func (p *Palette) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.samples {
		n += len(s)
	}
	return n
}

// Has reports whether the label exists in the palette.
func (p *Palette) Has(label string) bool {
	_, ok := p.samples[label]
	return ok
}

// Points flattens the palette back into reference points in load order.
func (p *Palette) Points() []ReferencePoint {
	points := make([]ReferencePoint, 0, p.Len())
	for _, label := range p.labels {
		for _, s := range p.samples[label] {
			points = append(points, ReferencePoint{Label: label, Sample: s})
		}
	}
	return points
}

// Centroids returns a palette with one averaged sample per label.
// Channel means are rounded to the nearest integer.
func (p *Palette) Centroids() *Palette {
	c := &Palette{
		shape:   ShapeCentroid,
		labels:  p.Labels(),
		samples: make(map[string][]ColorSample, len(p.labels)),
	}

	for _, label := range p.labels {
		samples := p.samples[label]
		var sumR, sumG, sumB float64
		for _, s := range samples {
			sumR += float64(s.R)
			sumG += float64(s.G)
			sumB += float64(s.B)
		}
		n := float64(len(samples))
		c.samples[label] = []ColorSample{{
			R: uint8(math.Round(sumR / n)),
			G: uint8(math.Round(sumG / n)),
			B: uint8(math.Round(sumB / n)),
		}}
	}
	return c
}

// WithShape returns the palette reduced to the given shape.
func (p *Palette) WithShape(shape Shape) (*Palette, error) {
	switch shape {
	case ShapeMultiSample, "":
		return p, nil
	case ShapeCentroid:
		if p.shape == ShapeCentroid {
			return p, nil
		}
		return p.Centroids(), nil
	default:
		return nil, fmt.Errorf("unknown palette shape %q", shape)
	}
}

// PaletteOptions controls parsing of reference data.
type PaletteOptions struct {
	// Strict aborts on the first malformed row. When false malformed rows
	// are skipped, logged, and counted in the LoadReport.
	Strict bool
	// Shape is applied to the parsed palette.
	Shape  Shape
	Logger *slog.Logger
}

// DefaultPaletteOptions returns strict multi-sample parsing.
func DefaultPaletteOptions() PaletteOptions {
	return PaletteOptions{Strict: true, Shape: ShapeMultiSample}
}

// LoadReport summarizes a palette load.
type LoadReport struct {
	Rows    int
	Loaded  int
	Skipped int
	Labels  int
}

// LoadPalette reads reference data from a CSV file.
func LoadPalette(path string, opts PaletteOptions) (*Palette, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("open reference data: %w", err)
	}
	defer f.Close()

	p, report, err := ReadPalette(f, opts)
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", path, err)
	}
	return p, report, nil
}

// ReadPalette parses CSV rows of (label, R, G, B) preceded by a header row.
func ReadPalette(r io.Reader, opts PaletteOptions) (*Palette, LoadReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	points, report, err := ParseReferences(r, opts.Strict, logger)
	if err != nil {
		return nil, report, err
	}
	if len(points) == 0 {
		return nil, report, ErrEmptyPalette
	}

	p, err := NewPalette(points)
	if err != nil {
		return nil, report, err
	}
	p, err = p.WithShape(opts.Shape)
	if err != nil {
		return nil, report, err
	}
	report.Labels = len(p.labels)

	if report.Skipped > 0 {
		logger.Warn("reference data rows skipped",
			"skipped", report.Skipped,
			"loaded", report.Loaded)
	}
	return p, report, nil
}

// ParseReferences parses CSV reference rows without building a palette.
func ParseReferences(r io.Reader, strict bool, logger *slog.Logger) ([]ReferencePoint, LoadReport, error) {
	var report LoadReport
	if logger == nil {
		logger = slog.Default()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, report, ErrEmptyPalette
	}
	if err != nil {
		return nil, report, &DataFormatError{Line: 1, Reason: err.Error()}
	}
	if len(header) != 4 {
		return nil, report, &DataFormatError{
			Line:   1,
			Reason: fmt.Sprintf("header has %d columns, expected 4 (label,R,G,B)", len(header)),
		}
	}
	columns := [3]string{header[1], header[2], header[3]}

	var points []ReferencePoint
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, report, &DataFormatError{Line: line, Reason: err.Error()}
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		report.Rows++

		pt, rowErr := parseRow(record, line, columns)
		if rowErr != nil {
			if strict {
				return nil, report, rowErr
			}
			report.Skipped++
			logger.Warn("skipping malformed reference row", "error", rowErr)
			continue
		}
		points = append(points, pt)
		report.Loaded++
	}

	return points, report, nil
}

func parseRow(record []string, line int, columns [3]string) (ReferencePoint, error) {
	if len(record) != 4 {
		return ReferencePoint{}, &DataFormatError{
			Line:   line,
			Reason: fmt.Sprintf("row has %d columns, expected 4", len(record)),
		}
	}

	label := strings.TrimSpace(record[0])
	if label == "" {
		return ReferencePoint{}, &DataFormatError{Line: line, Column: "label", Reason: "empty label"}
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		raw := strings.TrimSpace(record[i+1])
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ReferencePoint{}, &DataFormatError{Line: line, Column: columns[i], Value: raw, Reason: "not an integer"}
		}
		if v < 0 || v > 255 {
			return ReferencePoint{}, &DataFormatError{Line: line, Column: columns[i], Value: raw, Reason: "out of range [0,255]"}
		}
		ch[i] = uint8(v)
	}

	return ReferencePoint{
		Label:  label,
		Sample: ColorSample{R: ch[0], G: ch[1], B: ch[2]},
	}, nil
}
