package terrain

import (
	"fmt"
	"math"
)

// Brush describes one localized edit to the height plane. Magnitude may be
// negative to dig. Cells further than Radius from the center are untouched;
// inside the radius the applied amount falls off linearly to zero at the
// boundary.
type Brush struct {
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	Radius    int     `json:"radius"`
	Magnitude float64 `json:"magnitude"`
}

// Validate rejects brushes that could never apply cleanly. The center must be
// on the grid; the brush area may extend past the edges.
func (b Brush) Validate(g *Grid) error {
	if b.Radius <= 0 {
		return fmt.Errorf("terrain: brush radius must be positive, got %d", b.Radius)
	}
	if !isFinite(b.Magnitude) {
		return fmt.Errorf("terrain: brush magnitude must be finite")
	}
	if !g.InBounds(b.Row, b.Col) {
		return fmt.Errorf("%w: brush center (%d,%d) outside %dx%d", ErrOutOfBounds, b.Row, b.Col, g.Width, g.Height)
	}
	return nil
}

// ApplyBrush adds the brush to the height plane with linear falloff and
// clamps every touched cell to [0, MaxElevation]. Cells outside the grid are
// skipped so a brush may straddle an edge. The grid is left unchanged if
// validation fails.
func (g *Grid) ApplyBrush(b Brush) error {
	if err := b.Validate(g); err != nil {
		return err
	}

	r := b.Radius
	for row := b.Row - r; row <= b.Row+r; row++ {
		for col := b.Col - r; col <= b.Col+r; col++ {
			if !g.InBounds(row, col) {
				continue
			}
			dr := float64(row - b.Row)
			dc := float64(col - b.Col)
			dist := math.Sqrt(dr*dr + dc*dc)
			weight := 1 - dist/float64(r)
			if weight <= 0 {
				continue
			}
			i := g.Idx(row, col)
			g.heights[i] = clampElevation(g.heights[i] + b.Magnitude*weight)
		}
	}
	return nil
}

func clampElevation(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxElevation {
		return MaxElevation
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
