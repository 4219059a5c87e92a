// Package udpingest receives depth frames as JSON datagrams over UDP and
// forwards them to the engine. It exists for depth estimators that run as
// separate processes (the webcam fallback) and for replaying recorded
// sensor traffic.
package udpingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gritlab/sandtable/internal/engine"
	"github.com/gritlab/sandtable/internal/monitoring"
	"github.com/gritlab/sandtable/internal/terrain"
)

// maxDatagramBytes bounds one UDP read. A 128x128 frame of JSON floats fits
// comfortably; anything larger is truncated by the read and will fail to
// decode, landing in the dropped counter.
const maxDatagramBytes = 1 << 20

// Submitter is the slice of the engine the listener needs.
type Submitter interface {
	Submit(engine.Command) error
}

// Config wires up a Listener.
type Config struct {
	Address     string        // UDP listen address, e.g. ":9876"
	Stats       *PacketStats  // optional; allocated when nil
	LogInterval time.Duration // stats logging cadence; default one minute
}

// Listener owns the UDP socket and its read loop.
type Listener struct {
	address     string
	stats       *PacketStats
	logInterval time.Duration
	engine      Submitter

	connMu sync.Mutex
	conn   net.PacketConn
}

// NewListener creates a Listener that submits decoded frames to eng.
func NewListener(cfg Config, eng Submitter) *Listener {
	stats := cfg.Stats
	if stats == nil {
		stats = NewPacketStats()
	}
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &Listener{
		address:     cfg.Address,
		stats:       stats,
		logInterval: logInterval,
		engine:      eng,
	}
}

// Stats exposes the listener's counters.
func (l *Listener) Stats() *PacketStats { return l.stats }

// LocalAddr returns the bound address, or nil before Listen runs. Tests use
// it to discover the ephemeral port.
func (l *Listener) LocalAddr() net.Addr {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Listen binds the socket and processes datagrams until the context is
// cancelled.
func (l *Listener) Listen(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.address)
	if err != nil {
		return fmt.Errorf("udpingest: failed to bind %s: %w", l.address, err)
	}
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	monitoring.Logf("udpingest: listening on %s", conn.LocalAddr())

	// closing the socket is what unblocks ReadFrom on cancellation
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.stats.LogStats()
			}
		}
	}()

	buf := make([]byte, maxDatagramBytes)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udpingest: read failed: %w", err)
		}
		l.handleDatagram(buf[:n])
	}
}

func (l *Listener) handleDatagram(data []byte) {
	l.stats.AddPacket(len(data))

	var frame terrain.DepthFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		l.stats.AddDropped()
		monitoring.Logf("udpingest: dropping undecodable datagram: %v", err)
		return
	}
	if err := frame.Validate(); err != nil {
		l.stats.AddDropped()
		monitoring.Logf("udpingest: dropping malformed frame: %v", err)
		return
	}

	if err := l.engine.Submit(engine.DepthFrameCommand{Frame: frame}); err != nil {
		l.stats.AddRejected()
		return
	}
	l.stats.AddFrame()
}
