package terrain

// Simulator advances a grid by discrete ticks. Each tick runs height
// smoothing followed by water transport, with water reading the
// post-smoothing heights of the same tick. Both passes use a
// read-old/write-new double buffer so results never depend on cell visit
// order, which keeps ticks deterministic and testable.
type Simulator struct {
	grid   *Grid
	params Params

	// scratch buffers reused across ticks to avoid per-tick allocation
	nextHeights []float64
	nextWater   []float64
}

// NewSimulator wires a simulator to the grid it owns stepping for.
func NewSimulator(g *Grid, p Params) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := g.Width * g.Height
	return &Simulator{
		grid:        g,
		params:      p,
		nextHeights: make([]float64, n),
		nextWater:   make([]float64, n),
	}, nil
}

// Params returns the simulator's current tuning.
func (s *Simulator) Params() Params { return s.params }

// SetParams swaps the tuning for subsequent ticks. Invalid params are
// rejected and the old tuning stays in effect.
func (s *Simulator) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

// Step advances the grid by exactly one tick.
func (s *Simulator) Step() {
	s.smoothHeights()
	s.transportWater()
}

// smoothHeights pulls every interior cell toward its 4-neighbour average:
// h' = retention*h + (1-retention)*avg4. Border cells are copied unchanged
// to avoid edge artifacts from the truncated neighbourhood.
func (s *Simulator) smoothHeights() {
	g := s.grid
	w, h := g.Width, g.Height
	old := g.heights
	next := s.nextHeights
	copy(next, old)

	r := s.params.Retention
	for row := 1; row < h-1; row++ {
		for col := 1; col < w-1; col++ {
			i := row*w + col
			avg := (old[i-w] + old[i+w] + old[i-1] + old[i+1]) / 4
			next[i] = r*old[i] + (1-r)*avg
		}
	}

	g.heights, s.nextHeights = next, old
}

// neighbourOffsets is the fixed scan order for water transport: up, down,
// left, right. The order is the tie-breaker when several neighbours share
// the lowest potential, so it must not change.
func neighbourOffsets(width int) [4]int {
	return [4]int{-width, width, -1, 1}
}

// transportWater sheds a fixed fraction of each wet interior cell's water to
// its lowest-potential 4-neighbour, where potential is height+water. Heights
// are the post-smoothing values of this tick; water depths are read from the
// pre-tick buffer. If no neighbour is strictly lower the flow returns to its
// source, so total water is conserved across the tick.
func (s *Simulator) transportWater() {
	g := s.grid
	w, h := g.Width, g.Height
	heights := g.heights
	old := g.water
	next := s.nextWater
	copy(next, old)

	offsets := neighbourOffsets(w)
	eps := s.params.WaterEpsilon
	f := s.params.FlowFraction

	for row := 1; row < h-1; row++ {
		for col := 1; col < w-1; col++ {
			i := row*w + col
			if old[i] <= eps {
				continue
			}
			flow := old[i] * f
			next[i] -= flow

			target := i
			best := heights[i] + old[i]
			for _, off := range offsets {
				j := i + off
				if p := heights[j] + old[j]; p < best {
					best = p
					target = j
				}
			}
			next[target] += flow
		}
	}

	g.water, s.nextWater = next, old
}
