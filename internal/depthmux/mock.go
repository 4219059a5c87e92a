package depthmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSensorPort implements SensorPorter for dev mode and tests. Reads come
// from the supplied reader; writes (sensor commands) are discarded after
// being recorded.
type MockSensorPort struct {
	io.Reader

	mu      sync.Mutex
	writes  bytes.Buffer
	closed  bool
	closeFn func()
}

func (m *MockSensorPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("depthmux: mock port closed")
	}
	return m.writes.Write(p)
}

func (m *MockSensorPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.closeFn != nil {
		m.closeFn()
	}
	return nil
}

// Commands returns everything written to the mock port so far.
func (m *MockSensorPort) Commands() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes.String()
}

// NewMockDepthMux creates a DepthMux backed by a mock port that replays the
// given fixture bytes (sensor line protocol) at the given interval, looping
// forever. Used by -dev mode so the whole pipeline runs without hardware.
func NewMockDepthMux(fixture []byte, interval time.Duration) *DepthMux[*MockSensorPort] {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	r, w := io.Pipe()
	mockPort := &MockSensorPort{
		Reader:  r,
		closeFn: func() { w.Close() },
	}

	lines := bytes.Split(bytes.TrimSpace(fixture), []byte("\n"))

	// feed fixture lines on a ticker to simulate sensor frame pacing
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for range ticker.C {
			line := append(bytes.TrimRight(lines[i%len(lines)], "\r"), '\n')
			if _, err := w.Write(line); err != nil {
				return
			}
			i++
		}
	}()

	return New(mockPort)
}
