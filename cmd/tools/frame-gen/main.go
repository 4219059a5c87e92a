// Command frame-gen generates synthetic depth sensor fixture files for dev
// mode and tests. Each line is one frame in the sensor's wire format; the
// terrain is a drifting hill field so replays show visible settling.
package main

import (
	"bufio"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/gritlab/sandtable/internal/depthmux"
	"github.com/gritlab/sandtable/internal/terrain"
)

func main() {
	output := flag.String("o", "fixtures.txt", "output path")
	frames := flag.Int("n", 100, "number of frames")
	width := flag.Int("width", 100, "frame width in cells")
	height := flag.Int("height", 75, "frame height in cells")
	noise := flag.Float64("noise", 0.5, "per-sample noise amplitude")
	dropout := flag.Float64("dropout", 0.01, "fraction of samples emitted as nan")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	// comment header so the fixture is self-describing
	if _, err := w.WriteString("# synthetic depth fixture\n"); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *frames; i++ {
		frame := synthesizeFrame(*width, *height, i, *noise, *dropout, rng)
		if _, err := w.WriteString(depthmux.FormatFrameLine(frame) + "\n"); err != nil {
			log.Fatalf("failed to write frame: %v", err)
		}
		if (i+1)%10 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	log.Printf("✓ Created: %s", *output)
}

// synthesizeFrame builds one frame of rolling hills that drift slowly with
// the frame index, plus sample noise and nan dropouts.
func synthesizeFrame(width, height, idx int, noise, dropout float64, rng *rand.Rand) terrain.DepthFrame {
	samples := make([]float64, width*height)
	phase := float64(idx) * 0.02
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			if rng.Float64() < dropout {
				samples[row*width+col] = math.NaN()
				continue
			}
			x := float64(col) / float64(width) * 4 * math.Pi
			y := float64(row) / float64(height) * 4 * math.Pi
			h := 25 + 20*math.Sin(x+phase)*math.Cos(y-phase)
			h += noise * (rng.Float64()*2 - 1)
			if h < 0 {
				h = 0
			}
			samples[row*width+col] = h
		}
	}
	return terrain.DepthFrame{Width: width, Height: height, Samples: samples}
}
