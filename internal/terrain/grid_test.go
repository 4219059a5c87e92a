package terrain

import (
	"errors"
	"testing"
)

func mustGrid(t *testing.T, w, h int) *Grid {
	t.Helper()
	g, err := NewGrid(w, h)
	if err != nil {
		t.Fatalf("NewGrid(%d,%d): %v", w, h, err)
	}
	return g
}

func TestNewGridRejectsBadDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-1, 5}, {5, -1}} {
		if _, err := NewGrid(dims[0], dims[1]); err == nil {
			t.Fatalf("expected error for dimensions %dx%d", dims[0], dims[1])
		}
	}
}

func TestGridStartsZeroed(t *testing.T) {
	g := mustGrid(t, 4, 3)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			h, w, err := g.At(row, col)
			if err != nil {
				t.Fatalf("At(%d,%d): %v", row, col, err)
			}
			if h != 0 || w != 0 {
				t.Fatalf("cell (%d,%d) not zero: h=%v w=%v", row, col, h, w)
			}
		}
	}
}

func TestGridAtOutOfBounds(t *testing.T) {
	g := mustGrid(t, 4, 3)
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 4}} {
		_, _, err := g.At(c[0], c[1])
		if !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("At(%d,%d): want ErrOutOfBounds, got %v", c[0], c[1], err)
		}
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	g := mustGrid(t, 3, 3)
	g.Heights()[g.Idx(1, 1)] = 42
	snap := g.Snapshot()

	// mutating the live grid must not leak into the snapshot
	g.Heights()[g.Idx(1, 1)] = 7
	g.Water()[g.Idx(1, 1)] = 3

	h, w, err := snap.At(1, 1)
	if err != nil {
		t.Fatalf("snapshot At: %v", err)
	}
	if h != 42 || w != 0 {
		t.Fatalf("snapshot mutated with grid: h=%v w=%v", h, w)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	g := mustGrid(t, 5, 5)
	if err := g.ApplyBrush(Brush{Row: 2, Col: 2, Radius: 2, Magnitude: 30}); err != nil {
		t.Fatalf("ApplyBrush: %v", err)
	}
	if err := g.AddWater(2, 2, 5); err != nil {
		t.Fatalf("AddWater: %v", err)
	}

	g.Reset()
	g.Reset()

	for i, v := range g.Heights() {
		if v != 0 {
			t.Fatalf("height[%d]=%v after reset", i, v)
		}
	}
	for i, v := range g.Water() {
		if v != 0 {
			t.Fatalf("water[%d]=%v after reset", i, v)
		}
	}
}

func TestAddWaterRejectsOutOfBounds(t *testing.T) {
	g := mustGrid(t, 3, 3)
	if err := g.AddWater(3, 0, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("want ErrOutOfBounds, got %v", err)
	}
}

func TestAddWaterIgnoresNonPositive(t *testing.T) {
	g := mustGrid(t, 3, 3)
	if err := g.AddWater(1, 1, -4); err != nil {
		t.Fatalf("AddWater: %v", err)
	}
	if _, w, _ := g.At(1, 1); w != 0 {
		t.Fatalf("negative deposit changed water to %v", w)
	}
}

func TestSnapshotTopography(t *testing.T) {
	g := mustGrid(t, 2, 2)
	snap := g.Snapshot()
	snap.Heights = []float64{10, 20, 30, 40}

	topo := snap.Topography()
	if topo.MinHeight != 10 {
		t.Errorf("MinHeight = %v, want 10", topo.MinHeight)
	}
	if topo.MaxHeight != 40 {
		t.Errorf("MaxHeight = %v, want 40", topo.MaxHeight)
	}
	if topo.MeanHeight != 25 {
		t.Errorf("MeanHeight = %v, want 25", topo.MeanHeight)
	}
}

func TestSnapshotTopographyEmpty(t *testing.T) {
	s := &Snapshot{}
	if topo := s.Topography(); topo != (Topography{}) {
		t.Errorf("empty snapshot topography = %+v, want zero", topo)
	}
}
