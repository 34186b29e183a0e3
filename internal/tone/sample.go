// Package tone provides skin tone classification against a reference palette
// and temporal stabilization of the resulting labels.
package tone

import (
	"fmt"
	"time"
)

// ColorSample is a color in canonical R, G, B channel order.
type ColorSample struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String formats the sample as (r,g,b).
func (c ColorSample) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.R, c.G, c.B)
}

// vector returns the channels as floats for distance math.
func (c ColorSample) vector() [3]float64 {
	return [3]float64{float64(c.R), float64(c.G), float64(c.B)}
}

// ReferencePoint is one labeled sample of the reference palette.
type ReferencePoint struct {
	Label  string      `json:"label"`
	Sample ColorSample `json:"sample"`
}

// ClassificationEvent is the result of classifying one sample.
type ClassificationEvent struct {
	Label    string      `json:"label"`
	Distance float64     `json:"distance"`
	Sample   ColorSample `json:"sample"`
	Frame    uint64      `json:"frame"`
	Time     time.Time   `json:"time"`
}
