// Command session-report renders an HTML report for one recorded session:
// mean height and total water over time, the final band distribution, and
// command activity.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/gritlab/sandtable/db"
	"github.com/gritlab/sandtable/internal/terrain"
)

func main() {
	dbPath := flag.String("db", "sandtable.db", "recording database path")
	sessionID := flag.String("session", "", "session id (default: most recent session)")
	output := flag.String("o", "report.html", "output path")
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

	page, err := buildReport(database, id)
	if err != nil {
		log.Fatalf("failed to build report: %v", err)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("✓ Created: %s (session %s)", *output, id)
}

func buildReport(database *db.DB, sessionID string) (*components.Page, error) {
	ticks, err := database.SnapshotTicks(sessionID)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("session %s has no recorded snapshots", sessionID)
	}

	var (
		axis        []string
		meanHeights []opts.LineData
		totalWater  []opts.LineData
		last        *terrain.Snapshot
	)
	for _, tick := range ticks {
		snap, err := database.LoadSnapshot(sessionID, tick)
		if err != nil {
			return nil, err
		}
		axis = append(axis, fmt.Sprintf("%d", tick))
		meanHeights = append(meanHeights, opts.LineData{Value: stat.Mean(snap.Heights, nil)})
		totalWater = append(totalWater, opts.LineData{Value: sum(snap.Water)})
		last = snap
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Terrain over time"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
	)
	line.SetXAxis(axis).
		AddSeries("mean height", meanHeights).
		AddSeries("total water", totalWater)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Band distribution at tick %d", last.Tick)}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
	)
	bar.SetXAxis([]string{"water", "sand", "grass", "rock"}).
		AddSeries("cells", bandCounts(last))

	page := components.NewPage()
	page.AddCharts(line, bar)

	if cmdBar, err := commandChart(database, sessionID); err != nil {
		return nil, err
	} else if cmdBar != nil {
		page.AddCharts(cmdBar)
	}

	return page, nil
}

func bandCounts(snap *terrain.Snapshot) []opts.BarData {
	counts := make(map[terrain.Band]int)
	for _, b := range snap.Classified() {
		counts[b]++
	}
	return []opts.BarData{
		{Value: counts[terrain.BandWater]},
		{Value: counts[terrain.BandSand]},
		{Value: counts[terrain.BandGrass]},
		{Value: counts[terrain.BandRock]},
	}
}

// commandChart summarizes the session's command log, or returns nil when the
// log is empty.
func commandChart(database *db.DB, sessionID string) (*charts.Bar, error) {
	cmds, err := database.Commands(sessionID)
	if err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	var order []string
	for _, c := range cmds {
		if _, seen := counts[c.Type]; !seen {
			order = append(order, c.Type)
		}
		counts[c.Type]++
	}

	var data []opts.BarData
	for _, typ := range order {
		data = append(data, opts.BarData{Value: counts[typ]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Commands by type"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
	)
	bar.SetXAxis(order).AddSeries("count", data)
	return bar, nil
}

func sum(vs []float64) float64 {
	var total float64
	for _, v := range vs {
		total += v
	}
	return total
}
