package depthmux

import "io"

// SensorPorter defines the minimal interface needed for a sensor port.
// This abstraction enables unit testing without real sensor hardware.
type SensorPorter interface {
	io.ReadWriter
	io.Closer
}
