// Package terrain implements the sandbox height/water grid and the
// fixed-step simulation that advances it. The grid is the single
// authoritative piece of mutable state in the system; everything outside the
// owning engine goroutine works from Snapshot copies.
package terrain

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxElevation is the upper bound for any height cell. Brush edits and depth
// blends clamp to it.
const MaxElevation = 100.0

// ErrOutOfBounds is returned when a cell coordinate falls outside the grid.
var ErrOutOfBounds = errors.New("terrain: cell out of bounds")

// Grid holds the height and water planes for a fixed-resolution sandbox.
// Dimensions are immutable after construction; both planes are stored as
// flat row-major slices of the same length.
type Grid struct {
	Width  int // columns
	Height int // rows

	heights []float64
	water   []float64
}

// NewGrid allocates an all-zero grid with the given dimensions.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("terrain: invalid grid dimensions %dx%d", width, height)
	}
	return &Grid{
		Width:   width,
		Height:  height,
		heights: make([]float64, width*height),
		water:   make([]float64, width*height),
	}, nil
}

// Idx returns the linear slice index for (row, col).
func (g *Grid) Idx(row, col int) int { return row*g.Width + col }

// InBounds reports whether (row, col) addresses a cell in the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Height && col >= 0 && col < g.Width
}

// At returns the height and water values at (row, col).
func (g *Grid) At(row, col int) (height, water float64, err error) {
	if !g.InBounds(row, col) {
		return 0, 0, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, row, col, g.Width, g.Height)
	}
	i := g.Idx(row, col)
	return g.heights[i], g.water[i], nil
}

// Heights exposes the backing height slice. Only the simulation owner may
// write through it; all other callers must use Snapshot.
func (g *Grid) Heights() []float64 { return g.heights }

// Water exposes the backing water slice under the same ownership rule as
// Heights.
func (g *Grid) Water() []float64 { return g.water }

// Reset zeroes both planes.
func (g *Grid) Reset() {
	for i := range g.heights {
		g.heights[i] = 0
		g.water[i] = 0
	}
}

// AddWater deposits water at (row, col). Negative amounts are ignored so the
// water plane can never go below zero through this path.
func (g *Grid) AddWater(row, col int, amount float64) error {
	if !g.InBounds(row, col) {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, row, col, g.Width, g.Height)
	}
	if amount <= 0 || !isFinite(amount) {
		return nil
	}
	g.water[g.Idx(row, col)] += amount
	return nil
}

// Snapshot is an immutable point-in-time copy of the grid, safe for
// concurrent reads while the simulation keeps mutating the live grid.
type Snapshot struct {
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Tick    uint64    `json:"tick"`
	Heights []float64 `json:"heights"`
	Water   []float64 `json:"water"`
}

// Snapshot deep-copies both planes.
func (g *Grid) Snapshot() *Snapshot {
	s := &Snapshot{
		Width:   g.Width,
		Height:  g.Height,
		Heights: make([]float64, len(g.heights)),
		Water:   make([]float64, len(g.water)),
	}
	copy(s.Heights, g.heights)
	copy(s.Water, g.water)
	return s
}

// Topography summarizes the height plane of a snapshot.
type Topography struct {
	MinHeight  float64 `json:"min_height"`
	MaxHeight  float64 `json:"max_height"`
	MeanHeight float64 `json:"mean_height"`
}

// Topography computes min/max/mean over the snapshot's height plane.
func (s *Snapshot) Topography() Topography {
	if len(s.Heights) == 0 {
		return Topography{}
	}
	return Topography{
		MinHeight:  floats.Min(s.Heights),
		MaxHeight:  floats.Max(s.Heights),
		MeanHeight: stat.Mean(s.Heights, nil),
	}
}

// At returns the height and water values at (row, col) of the snapshot.
func (s *Snapshot) At(row, col int) (height, water float64, err error) {
	if row < 0 || row >= s.Height || col < 0 || col >= s.Width {
		return 0, 0, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, row, col, s.Width, s.Height)
	}
	i := row*s.Width + col
	return s.Heights[i], s.Water[i], nil
}
