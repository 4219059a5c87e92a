package terrain

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrBadFrame is returned for depth frames whose dimensions and sample count
// do not agree.
var ErrBadFrame = errors.New("terrain: malformed depth frame")

// DepthFrame is one rectangular frame of already-normalized height samples
// from a depth source. Its resolution may differ from the grid's; it is
// resampled before blending. Individual samples may be NaN/Inf (sensor
// dropouts); those are skipped per-cell at blend time rather than rejected
// frame-wide.
type DepthFrame struct {
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Samples []float64 `json:"samples"`
}

// Validate checks the frame's shape. Sample values are not range-checked
// here; non-finite samples are handled at blend time.
func (f DepthFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrBadFrame, f.Width, f.Height)
	}
	if len(f.Samples) != f.Width*f.Height {
		return fmt.Errorf("%w: %dx%d frame carries %d samples, want %d",
			ErrBadFrame, f.Width, f.Height, len(f.Samples), f.Width*f.Height)
	}
	return nil
}

// Resample maps the frame onto a width×height grid using nearest-neighbour
// sampling. The frame must already be validated.
func (f DepthFrame) Resample(width, height int) []float64 {
	out := make([]float64, width*height)
	for row := 0; row < height; row++ {
		srcRow := row * f.Height / height
		for col := 0; col < width; col++ {
			srcCol := col * f.Width / width
			out[row*width+col] = f.Samples[srcRow*f.Width+srcCol]
		}
	}
	return out
}

// FrameStats summarises the finite samples of a depth frame. Mean and
// standard deviation double as a crude sensor noise estimate for diagnostics.
type FrameStats struct {
	Finite  int     `json:"finite"`
	Dropped int     `json:"dropped"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
}

// Stats computes FrameStats over the frame's finite samples.
func (f DepthFrame) Stats() FrameStats {
	finite := make([]float64, 0, len(f.Samples))
	s := FrameStats{}
	for _, v := range f.Samples {
		if !isFinite(v) {
			s.Dropped++
			continue
		}
		if len(finite) == 0 || v < s.Min {
			s.Min = v
		}
		if len(finite) == 0 || v > s.Max {
			s.Max = v
		}
		finite = append(finite, v)
	}
	s.Finite = len(finite)
	if len(finite) > 0 {
		s.Mean = stat.Mean(finite, nil)
	}
	if len(finite) > 1 {
		s.StdDev = stat.StdDev(finite, nil)
	}
	return s
}

// BlendDepthFrame folds a depth frame into the height plane with exponential
// smoothing: h = h*(1-alpha) + sample*alpha. The smoothing is what keeps
// noisy sensor input from flickering the terrain; raw samples are never
// written directly. Non-finite samples leave their cell unchanged. The grid
// is untouched if the frame is malformed or alpha is out of range.
func (g *Grid) BlendDepthFrame(f DepthFrame, alpha float64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if alpha <= 0 || alpha > 1 || !isFinite(alpha) {
		return fmt.Errorf("terrain: blend alpha %v outside (0,1]", alpha)
	}

	resampled := f.Resample(g.Width, g.Height)
	for i, sample := range resampled {
		if !isFinite(sample) {
			continue
		}
		g.heights[i] = clampElevation(g.heights[i]*(1-alpha) + sample*alpha)
	}
	return nil
}
