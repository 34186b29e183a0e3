package tone

import (
	"fmt"
	"math"
	"time"
)

// DefaultBrightnessTarget is the channel sum used by brightness normalization.
const DefaultBrightnessTarget = 255.0

// ClassifierOptions configures the distance computation.
type ClassifierOptions struct {
	// Weights multiply each channel's squared difference (R, G, B).
	Weights [3]float64
	// NormalizeBrightness rescales both samples so their channel sum equals
	// BrightnessTarget before measuring distance.
	NormalizeBrightness bool
	BrightnessTarget    float64
}

// DefaultClassifierOptions returns plain Euclidean distance.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		Weights:          [3]float64{1, 1, 1},
		BrightnessTarget: DefaultBrightnessTarget,
	}
}

// Classifier finds the nearest reference label for a color sample.
// It is safe for concurrent use.
type Classifier struct {
	palette *Palette
	opts    ClassifierOptions
	refs    []reference
}

// reference is a precomputed palette entry in iteration order.
type reference struct {
	label string
	vec   [3]float64
}

// NewClassifier creates a Classifier for the given palette.
func NewClassifier(p *Palette, opts ClassifierOptions) (*Classifier, error) {
	if p == nil || p.Len() == 0 {
		return nil, ErrEmptyPalette
	}
	for i, w := range opts.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("channel weight %d must be finite and non-negative, got %v", i, w)
		}
	}
	if math.IsNaN(opts.BrightnessTarget) || math.IsInf(opts.BrightnessTarget, 0) {
		return nil, fmt.Errorf("brightness target must be finite, got %v", opts.BrightnessTarget)
	}
	if opts.Weights == [3]float64{} {
		opts.Weights = [3]float64{1, 1, 1}
	}
	if opts.BrightnessTarget <= 0 {
		opts.BrightnessTarget = DefaultBrightnessTarget
	}

	c := &Classifier{palette: p, opts: opts}
	for _, label := range p.labels {
		for _, s := range p.samples[label] {
			c.refs = append(c.refs, reference{label: label, vec: c.prepare(s)})
		}
	}
	return c, nil
}

// Palette returns the palette used by the classifier.
func (c *Classifier) Palette() *Palette {
	return c.palette
}

// Options returns the classifier options.
func (c *Classifier) Options() ClassifierOptions {
	return c.opts
}

// Classify returns the label of the nearest reference sample.
// On equal distances the first reference in load order wins.
func (c *Classifier) Classify(s ColorSample) (ClassificationEvent, error) {
	if c == nil || len(c.refs) == 0 {
		return ClassificationEvent{}, ErrEmptyPalette
	}

	in := c.prepare(s)
	best := -1
	bestDist := math.Inf(1)
	for i, ref := range c.refs {
		d := c.distanceSquared(in, ref.vec)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	// NaN or overflowing distances never compare smaller; fall back to the
	// first reference so a label is always returned.
	if best < 0 {
		best = 0
	}

	return ClassificationEvent{
		Label:    c.refs[best].label,
		Distance: math.Sqrt(bestDist),
		Sample:   s,
		Time:     time.Now(),
	}, nil
}

// Distance returns the configured distance between two samples.
func (c *Classifier) Distance(a, b ColorSample) float64 {
	return math.Sqrt(c.distanceSquared(c.prepare(a), c.prepare(b)))
}

func (c *Classifier) prepare(s ColorSample) [3]float64 {
	v := s.vector()
	if c.opts.NormalizeBrightness {
		v = normalizeBrightness(v, c.opts.BrightnessTarget)
	}
	return v
}

func (c *Classifier) distanceSquared(a, b [3]float64) float64 {
	var sum float64
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		sum += c.opts.Weights[i] * d * d
	}
	return sum
}

// normalizeBrightness rescales v so its channels sum to target.
// A black sample stays black.
func normalizeBrightness(v [3]float64, target float64) [3]float64 {
	sum := v[0] + v[1] + v[2]
	if sum == 0 {
		return v
	}
	k := target / sum
	return [3]float64{v[0] * k, v[1] * k, v[2] * k}
}
