// Package depthmux provides an abstraction over a serial-attached depth
// sensor with the ability for multiple clients to subscribe to parsed depth
// frames and send configuration commands to the single device.
package depthmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/gritlab/sandtable/internal/monitoring"
	"github.com/gritlab/sandtable/internal/terrain"
)

// ErrWriteFailed reports a short write to the sensor port.
var ErrWriteFailed = fmt.Errorf("depthmux: failed to write to sensor port")

// DepthMux multiplexes one depth sensor to many subscribers. Raw lines are
// parsed into terrain.DepthFrame values before fan-out; lines that fail to
// parse are logged and dropped so one bad frame never tears down the stream.
type DepthMux[T SensorPorter] struct {
	port         T
	subscribers  map[string]chan terrain.DepthFrame
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	framesParsed uint64
	framesBad    uint64
	statsMu      sync.Mutex
}

// DepthMuxInterface defines the behaviour the rest of the system relies on,
// so the real device, the fixture-driven mock, and the disabled stub are
// interchangeable.
type DepthMuxInterface interface {
	// Subscribe creates a new channel for receiving parsed depth frames.
	// The returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan terrain.DepthFrame)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command line to the sensor.
	SendCommand(string) error
	// Monitor reads lines from the sensor, parses them, and feeds
	// subscribers until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the underlying port.
	Close() error

	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// New creates a DepthMux backed by the given sensor port.
func New[T SensorPorter](port T) *DepthMux[T] {
	return &DepthMux[T]{
		port:        port,
		subscribers: make(map[string]chan terrain.DepthFrame),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (m *DepthMux[T]) Subscribe() (string, chan terrain.DepthFrame) {
	id := randomID()
	ch := make(chan terrain.DepthFrame, 1)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *DepthMux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Initialize pushes the output configuration to the sensor so its line
// format matches what the parser expects.
func (m *DepthMux[T]) Initialize() error {
	for _, command := range []string{
		fmt.Sprintf("C=%d", time.Now().Unix()), // sync the sensor clock
		"OF",   // emit frames as DF lines
		"ON",   // normalize samples to the 0-100 elevation range
		"R=30", // cap the frame rate at the simulation tick rate
	} {
		if err := m.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command line to the sensor.
func (m *DepthMux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads sensor lines, parses depth frames, and fans them out to
// subscribers until the context is cancelled or the port fails.
func (m *DepthMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop can
	// still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.handleLine(line)
		}
	}
}

func (m *DepthMux[T]) handleLine(line string) {
	frame, ok, err := ParseFrameLine(line)
	if err != nil {
		m.statsMu.Lock()
		m.framesBad++
		m.statsMu.Unlock()
		monitoring.Logf("depthmux: dropping bad frame line: %v", err)
		return
	}
	if !ok {
		// comment or status line
		return
	}

	m.statsMu.Lock()
	m.framesParsed++
	m.statsMu.Unlock()

	m.subscriberMu.Lock()
	for _, ch := range m.subscribers {
		select {
		case ch <- frame:
		default:
			// subscriber is still working on the previous frame; skip
		}
	}
	m.subscriberMu.Unlock()
}

// Stats returns the number of frames parsed and dropped since start.
func (m *DepthMux[T]) Stats() (parsed, bad uint64) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.framesParsed, m.framesBad
}

func (m *DepthMux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}

// AttachAdminRoutes attaches sensor debugging endpoints. These are served
// under /debug/ and are only reachable locally or over Tailscale.
func (m *DepthMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("sensor-stats", "depth sensor frame counters", func(w http.ResponseWriter, r *http.Request) {
		parsed, bad := m.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"frames_parsed": %d, "frames_bad": %d}`, parsed, bad)
	})

	// API endpoint to write a raw command to the sensor
	debug.HandleSilentFunc("sensor-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(command); err != nil {
			http.Error(w, fmt.Sprintf("Failed to send command: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "sent %q", command)
	})

	// live tail of parsed frame headers for quick sanity checks
	debug.HandleSilentFunc("sensor-tail", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		id, ch := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		var buf bytes.Buffer
		for {
			select {
			case <-r.Context().Done():
				return
			case frame, ok := <-ch:
				if !ok {
					return
				}
				buf.Reset()
				stats := frame.Stats()
				fmt.Fprintf(&buf, "%dx%d finite=%d dropped=%d mean=%.2f\n",
					frame.Width, frame.Height, stats.Finite, stats.Dropped, stats.Mean)
				if _, err := w.Write(buf.Bytes()); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}
