package terrain

import "fmt"

// Params are the simulation tuning knobs. Zero values are not meaningful;
// construct with DefaultParams and override selectively.
type Params struct {
	// Retention is the fraction of a cell's own height kept during
	// smoothing; the remainder is pulled toward the 4-neighbour average.
	// 0.9 gives the slow perceptual settling the sandbox is tuned for.
	Retention float64

	// FlowFraction is the share of a wet cell's water moved downhill per
	// tick.
	FlowFraction float64

	// WaterEpsilon is the minimum water depth for a cell to participate in
	// transport. It doubles as the water-dominance threshold for
	// classification.
	WaterEpsilon float64

	// BlendAlpha is the exponential smoothing weight for incoming depth
	// frames.
	BlendAlpha float64
}

// DefaultParams returns the tuned sandbox behaviour.
func DefaultParams() Params {
	return Params{
		Retention:    0.9,
		FlowFraction: 0.1,
		WaterEpsilon: 0.1,
		BlendAlpha:   0.2,
	}
}

// Validate rejects parameter combinations the step function cannot run with.
func (p Params) Validate() error {
	if p.Retention < 0 || p.Retention > 1 {
		return fmt.Errorf("terrain: retention %v outside [0,1]", p.Retention)
	}
	if p.FlowFraction < 0 || p.FlowFraction > 1 {
		return fmt.Errorf("terrain: flow fraction %v outside [0,1]", p.FlowFraction)
	}
	if p.WaterEpsilon < 0 {
		return fmt.Errorf("terrain: water epsilon %v negative", p.WaterEpsilon)
	}
	if p.BlendAlpha <= 0 || p.BlendAlpha > 1 {
		return fmt.Errorf("terrain: blend alpha %v outside (0,1]", p.BlendAlpha)
	}
	return nil
}
