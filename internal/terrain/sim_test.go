package terrain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustSim(t *testing.T, g *Grid) *Simulator {
	t.Helper()
	s, err := NewSimulator(g, DefaultParams())
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func sum(vs []float64) float64 {
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total
}

func TestSmoothingSettlesBrushPeak(t *testing.T) {
	g := mustGrid(t, 10, 10)
	if err := g.ApplyBrush(Brush{Row: 5, Col: 5, Radius: 2, Magnitude: 20}); err != nil {
		t.Fatalf("ApplyBrush: %v", err)
	}
	sim := mustSim(t, g)

	for i := 0; i < 10; i++ {
		sim.Step()
	}

	h, _, _ := g.At(5, 5)
	if h >= 20 {
		t.Fatalf("peak did not settle: %v", h)
	}
	if h <= 0 {
		t.Fatalf("peak over-settled to %v", h)
	}
}

func TestSmoothingLeavesBorderUntouched(t *testing.T) {
	g := mustGrid(t, 8, 8)
	// fill the border with a sentinel value and the interior with another
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := 50.0
			if row == 0 || col == 0 || row == g.Height-1 || col == g.Width-1 {
				v = 77
			}
			g.Heights()[g.Idx(row, col)] = v
		}
	}
	sim := mustSim(t, g)
	sim.Step()

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if row != 0 && col != 0 && row != g.Height-1 && col != g.Width-1 {
				continue
			}
			if h, _, _ := g.At(row, col); h != 77 {
				t.Fatalf("border cell (%d,%d) changed to %v", row, col, h)
			}
		}
	}
}

func TestWaterConservationAcrossTicks(t *testing.T) {
	g := mustGrid(t, 16, 16)
	if err := g.ApplyBrush(Brush{Row: 4, Col: 4, Radius: 3, Magnitude: 60}); err != nil {
		t.Fatalf("ApplyBrush: %v", err)
	}
	for _, c := range [][2]int{{3, 3}, {8, 8}, {4, 12}} {
		if err := g.AddWater(c[0], c[1], 2.5); err != nil {
			t.Fatalf("AddWater: %v", err)
		}
	}
	sim := mustSim(t, g)

	before := sum(g.Water())
	for i := 0; i < 50; i++ {
		sim.Step()
		after := sum(g.Water())
		if math.Abs(after-before) > 1e-9 {
			t.Fatalf("tick %d: water not conserved: before=%v after=%v", i, before, after)
		}
	}
}

func TestWaterFlowsDownhill(t *testing.T) {
	g := mustGrid(t, 8, 8)
	// ramp descending toward higher columns
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			g.Heights()[g.Idx(row, col)] = float64(20 - col*2)
		}
	}
	if err := g.AddWater(4, 3, 4); err != nil {
		t.Fatalf("AddWater: %v", err)
	}
	sim := mustSim(t, g)
	sim.Step()

	// a tenth of the source water moves one cell downhill (right)
	_, src, _ := g.At(4, 3)
	_, dst, _ := g.At(4, 4)
	if math.Abs(src-3.6) > 1e-9 {
		t.Fatalf("source water = %v, want 3.6", src)
	}
	if math.Abs(dst-0.4) > 1e-9 {
		t.Fatalf("downhill water = %v, want 0.4", dst)
	}
}

// On perfectly flat ground every neighbour ties at the same potential, so
// the fixed scan order (up, down, left, right) decides: the up neighbour
// receives the flow.
func TestWaterTieBreakScanOrder(t *testing.T) {
	g := mustGrid(t, 9, 9)
	if err := g.AddWater(4, 4, 2); err != nil {
		t.Fatalf("AddWater: %v", err)
	}
	sim := mustSim(t, g)
	sim.Step()

	_, up, _ := g.At(3, 4)
	_, down, _ := g.At(5, 4)
	_, left, _ := g.At(4, 3)
	_, right, _ := g.At(4, 5)
	if math.Abs(up-0.2) > 1e-9 {
		t.Fatalf("up neighbour water = %v, want 0.2", up)
	}
	if down != 0 || left != 0 || right != 0 {
		t.Fatalf("flow leaked past tie-break: down=%v left=%v right=%v", down, left, right)
	}
}

func TestShallowWaterDoesNotMove(t *testing.T) {
	g := mustGrid(t, 6, 6)
	g.Water()[g.Idx(3, 3)] = 0.05 // below the epsilon threshold
	sim := mustSim(t, g)
	sim.Step()

	if _, w, _ := g.At(3, 3); w != 0.05 {
		t.Fatalf("sub-epsilon water moved: %v", w)
	}
}

func TestBoundednessUnderMixedLoad(t *testing.T) {
	g := mustGrid(t, 12, 12)
	sim := mustSim(t, g)

	for i := 0; i < 30; i++ {
		_ = g.ApplyBrush(Brush{Row: (i * 3) % 12, Col: (i * 5) % 12, Radius: 3, Magnitude: float64(40 - i*4)})
		_ = g.AddWater((i*7)%12, (i*2)%12, 1.5)
		sim.Step()
	}

	for i := range g.Heights() {
		h, w := g.Heights()[i], g.Water()[i]
		if h < 0 || h > MaxElevation {
			t.Fatalf("height[%d]=%v outside [0,%v]", i, h, MaxElevation)
		}
		if w < 0 {
			t.Fatalf("water[%d]=%v negative", i, w)
		}
		if math.IsNaN(h) || math.IsInf(h, 0) || math.IsNaN(w) || math.IsInf(w, 0) {
			t.Fatalf("cell %d not finite: h=%v w=%v", i, h, w)
		}
	}
}

func TestStepDeterminism(t *testing.T) {
	run := func() *Snapshot {
		g := mustGrid(t, 14, 14)
		sim := mustSim(t, g)
		_ = g.ApplyBrush(Brush{Row: 7, Col: 7, Radius: 4, Magnitude: 35})
		_ = g.AddWater(6, 6, 3)
		_ = g.AddWater(9, 2, 1.25)
		for i := 0; i < 40; i++ {
			sim.Step()
		}
		return g.Snapshot()
	}

	a, b := run(), run()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("two identical runs diverged (-first +second):\n%s", diff)
	}
}
