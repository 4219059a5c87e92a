// Command heightmap-plot renders one recorded snapshot as a PNG heightmap.
// Useful for eyeballing recorded sessions without spinning up the server.
package main

import (
	"flag"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gritlab/sandtable/db"
	"github.com/gritlab/sandtable/internal/terrain"
)

func main() {
	dbPath := flag.String("db", "sandtable.db", "recording database path")
	sessionID := flag.String("session", "", "session id (default: most recent session)")
	tick := flag.Uint64("tick", 0, "tick to plot (default: latest snapshot)")
	output := flag.String("o", "heightmap.png", "output path")
	flag.Parse()

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.Sessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no recorded sessions")
		}
		id = sessions[0].ID
	}

	var snap *terrain.Snapshot
	if *tick > 0 {
		snap, err = database.LoadSnapshot(id, *tick)
	} else {
		snap, err = database.LoadLatestSnapshot(id)
	}
	if err != nil {
		log.Fatalf("failed to load snapshot: %v", err)
	}

	if err := renderHeightmap(snap, *output); err != nil {
		log.Fatalf("failed to render: %v", err)
	}
	log.Printf("✓ Created: %s (session %s, tick %d)", *output, id, snap.Tick)
}

// snapshotGrid adapts a snapshot to the plotter.GridXYZ interface. Rows are
// flipped so row 0 renders at the top, matching the viewer.
type snapshotGrid struct {
	snap *terrain.Snapshot
}

func (g snapshotGrid) Dims() (int, int) { return g.snap.Width, g.snap.Height }
func (g snapshotGrid) X(c int) float64  { return float64(c) }
func (g snapshotGrid) Y(r int) float64  { return float64(r) }
func (g snapshotGrid) Z(c, r int) float64 {
	row := g.snap.Height - 1 - r
	return g.snap.Heights[row*g.snap.Width+c]
}

func renderHeightmap(snap *terrain.Snapshot, path string) error {
	p := plot.New()
	p.Title.Text = "Terrain heightmap"
	p.X.Label.Text = "col"
	p.Y.Label.Text = "row"

	hm := plotter.NewHeatMap(snapshotGrid{snap}, palette.Heat(16, 1))
	hm.Min = 0
	hm.Max = terrain.MaxElevation
	p.Add(hm)

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
