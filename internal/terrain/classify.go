package terrain

// Band is the topographic classification of one cell, consumed by external
// renderers for colour mapping.
type Band uint8

const (
	BandWater Band = iota
	BandSand
	BandGrass
	BandRock
)

// Classification thresholds. A cell is water-dominant when its water depth
// exceeds waterDominance; otherwise height alone decides the band.
const (
	waterDominance = 0.1
	sandCeiling    = 10.0
	grassCeiling   = 30.0
)

func (b Band) String() string {
	switch b {
	case BandWater:
		return "water"
	case BandSand:
		return "sand"
	case BandGrass:
		return "grass"
	case BandRock:
		return "rock"
	}
	return "unknown"
}

// Classify maps a single cell's height and water depth to its band.
func Classify(height, water float64) Band {
	switch {
	case water > waterDominance:
		return BandWater
	case height < sandCeiling:
		return BandSand
	case height < grassCeiling:
		return BandGrass
	default:
		return BandRock
	}
}

// Classified returns the per-cell bands for a snapshot, row-major.
func (s *Snapshot) Classified() []Band {
	bands := make([]Band, len(s.Heights))
	for i := range s.Heights {
		bands[i] = Classify(s.Heights[i], s.Water[i])
	}
	return bands
}
