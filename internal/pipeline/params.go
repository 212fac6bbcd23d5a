package pipeline

import (
	"fmt"
	"math"
)

// Parameter bounds accepted by Validate.
const (
	MaxCropPercent   = 50.0
	MinBrightness    = -100
	MaxBrightness    = 100
	MinContrast      = 0.5
	MaxContrast      = 3.0
	MaxEdgeThreshold = 500
	MinGridSize      = 2
	MaxGridSize      = 64

	DefaultEdgeLow  = 50
	DefaultEdgeHigh = 150
	DefaultGridSize = 3
)

// Crop holds the percentage trimmed from each side.
type Crop struct {
	Left   float64 `json:"left" yaml:"left" mapstructure:"left"`
	Right  float64 `json:"right" yaml:"right" mapstructure:"right"`
	Top    float64 `json:"top" yaml:"top" mapstructure:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom" mapstructure:"bottom"`
}

// IsZero reports whether nothing is trimmed.
func (c Crop) IsZero() bool {
	return c == Crop{}
}

// Params is the flat set of knobs one render is computed from.
type Params struct {
	// Rotation counts clockwise quarter turns; any integer is taken mod 4.
	Rotation   int     `json:"rotation" yaml:"rotation" mapstructure:"rotation"`
	Crop       Crop    `json:"crop" yaml:"crop" mapstructure:"crop"`
	Style      Style   `json:"style" yaml:"style" mapstructure:"style"`
	EdgeLow    int     `json:"edge_low" yaml:"edge_low" mapstructure:"edge_low"`
	EdgeHigh   int     `json:"edge_high" yaml:"edge_high" mapstructure:"edge_high"`
	Brightness int     `json:"brightness" yaml:"brightness" mapstructure:"brightness"`
	Contrast   float64 `json:"contrast" yaml:"contrast" mapstructure:"contrast"`
	ShowGrid   bool    `json:"show_grid" yaml:"show_grid" mapstructure:"show_grid"`
	GridSize   int     `json:"grid_size" yaml:"grid_size" mapstructure:"grid_size"`
}

// DefaultParams returns the neutral parameter set: no rotation, no crop,
// original style, unit contrast.
func DefaultParams() Params {
	return Params{
		Style:    StyleOriginal,
		EdgeLow:  DefaultEdgeLow,
		EdgeHigh: DefaultEdgeHigh,
		Contrast: 1.0,
		GridSize: DefaultGridSize,
	}
}

// Quadrant returns Rotation normalized into 0..3.
func (p Params) Quadrant() int {
	return ((p.Rotation % 4) + 4) % 4
}

// EdgeThresholds returns the Canny thresholds ordered low <= high with
// negatives clamped to zero.
func (p Params) EdgeThresholds() (low, high int) {
	low, high = max(p.EdgeLow, 0), max(p.EdgeHigh, 0)
	if low > high {
		low, high = high, low
	}
	return low, high
}

// Grid returns the number of cells per axis, falling back to the default.
func (p Params) Grid() int {
	if p.GridSize < MinGridSize {
		return DefaultGridSize
	}
	return p.GridSize
}

// Validate rejects knobs outside the ranges an input surface may submit.
func (p Params) Validate() error {
	for _, side := range []struct {
		name string
		v    float64
	}{
		{"crop.left", p.Crop.Left},
		{"crop.right", p.Crop.Right},
		{"crop.top", p.Crop.Top},
		{"crop.bottom", p.Crop.Bottom},
	} {
		if outside(side.v, 0, MaxCropPercent) {
			return &ParamError{Field: side.name, Value: side.v, Reason: fmt.Sprintf("must be between 0 and %g", MaxCropPercent)}
		}
	}
	if !p.Style.Valid() {
		return &ParamError{Field: "style", Value: int(p.Style), Reason: ErrUnknownStyle.Error()}
	}
	if p.Brightness < MinBrightness || p.Brightness > MaxBrightness {
		return &ParamError{Field: "brightness", Value: p.Brightness, Reason: fmt.Sprintf("must be between %d and %d", MinBrightness, MaxBrightness)}
	}
	if outside(p.Contrast, MinContrast, MaxContrast) {
		return &ParamError{Field: "contrast", Value: p.Contrast, Reason: fmt.Sprintf("must be between %g and %g", MinContrast, MaxContrast)}
	}
	if p.EdgeLow < 0 || p.EdgeLow > MaxEdgeThreshold {
		return &ParamError{Field: "edge_low", Value: p.EdgeLow, Reason: fmt.Sprintf("must be between 0 and %d", MaxEdgeThreshold)}
	}
	if p.EdgeHigh < 0 || p.EdgeHigh > MaxEdgeThreshold {
		return &ParamError{Field: "edge_high", Value: p.EdgeHigh, Reason: fmt.Sprintf("must be between 0 and %d", MaxEdgeThreshold)}
	}
	if p.GridSize != 0 && (p.GridSize < MinGridSize || p.GridSize > MaxGridSize) {
		return &ParamError{Field: "grid_size", Value: p.GridSize, Reason: fmt.Sprintf("must be between %d and %d", MinGridSize, MaxGridSize)}
	}
	return nil
}

// outside reports whether v is NaN or not within [lo, hi].
func outside(v, lo, hi float64) bool {
	return math.IsNaN(v) || v < lo || v > hi
}
