package depthmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealDepthMux opens the serial device at path and wraps it in a mux.
func NewRealDepthMux(path string, opts PortOptions) (*DepthMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("depthmux: invalid port options: %w", err)
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("depthmux: failed to open sensor port %s: %w", path, err)
	}
	return New(port), nil
}
