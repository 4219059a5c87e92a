package depthmux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gritlab/sandtable/internal/terrain"
)

// Line protocol emitted by the sensor firmware (and the fixture generator):
//
//	DF,<width>,<height>,<v0>,<v1>,...   one depth frame, row-major samples
//	# ...                               comment, ignored
//	{...}                               JSON status line, ignored here
//
// Sample tokens may be "nan" for dropouts; those survive parsing and are
// filtered per-cell at blend time.
const (
	framePrefix = "DF"

	// maxLineBytes bounds a single frame line; a 256x256 frame of 8-char
	// samples stays well inside it.
	maxLineBytes = 1 << 20

	// maxFrameCells guards against a corrupt header allocating gigabytes.
	maxFrameCells = 1 << 20
)

// ParseFrameLine parses one sensor line. ok is false for ignorable lines
// (blank, comment, status); err is set for lines that claim to be frames but
// are malformed.
func ParseFrameLine(line string) (frame terrain.DepthFrame, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "{") {
		return terrain.DepthFrame{}, false, nil
	}

	fields := strings.Split(trimmed, ",")
	if fields[0] != framePrefix {
		return terrain.DepthFrame{}, false, nil
	}
	if len(fields) < 3 {
		return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: truncated frame header %q", trimmed)
	}

	width, err := strconv.Atoi(fields[1])
	if err != nil {
		return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: bad frame width: %w", err)
	}
	height, err := strconv.Atoi(fields[2])
	if err != nil {
		return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: bad frame height: %w", err)
	}
	if width <= 0 || height <= 0 || width*height > maxFrameCells {
		return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: implausible frame dimensions %dx%d", width, height)
	}

	tokens := fields[3:]
	if len(tokens) != width*height {
		return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: %dx%d frame carries %d samples", width, height, len(tokens))
	}

	samples := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return terrain.DepthFrame{}, false, fmt.Errorf("depthmux: bad sample %d: %w", i, err)
		}
		samples[i] = v
	}

	frame = terrain.DepthFrame{Width: width, Height: height, Samples: samples}
	if err := frame.Validate(); err != nil {
		return terrain.DepthFrame{}, false, err
	}
	return frame, true, nil
}

// FormatFrameLine renders a frame in the sensor line protocol. The fixture
// generator and tests use it to produce input for the mock port.
func FormatFrameLine(frame terrain.DepthFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s,%d,%d", framePrefix, frame.Width, frame.Height)
	for _, v := range frame.Samples {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
