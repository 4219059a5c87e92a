package udpingest

import (
	"sync/atomic"
	"time"

	"github.com/gritlab/sandtable/internal/monitoring"
)

// PacketStats tracks ingest counters. All methods are safe for concurrent
// use; the read loop and the logging ticker share one instance.
type PacketStats struct {
	packets  atomic.Uint64
	bytes    atomic.Uint64
	frames   atomic.Uint64
	dropped  atomic.Uint64
	rejected atomic.Uint64

	start time.Time
}

// NewPacketStats returns zeroed counters anchored at now.
func NewPacketStats() *PacketStats {
	return &PacketStats{start: time.Now()}
}

// AddPacket records one received datagram of n bytes.
func (s *PacketStats) AddPacket(n int) {
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
}

// AddFrame records one successfully decoded depth frame.
func (s *PacketStats) AddFrame() { s.frames.Add(1) }

// AddDropped records a datagram that failed to decode.
func (s *PacketStats) AddDropped() { s.dropped.Add(1) }

// AddRejected records a decoded frame the engine refused (queue full).
func (s *PacketStats) AddRejected() { s.rejected.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Packets  uint64        `json:"packets"`
	Bytes    uint64        `json:"bytes"`
	Frames   uint64        `json:"frames"`
	Dropped  uint64        `json:"dropped"`
	Rejected uint64        `json:"rejected"`
	Uptime   time.Duration `json:"uptime_ns"`
}

// Snapshot copies the counters.
func (s *PacketStats) Snapshot() Snapshot {
	return Snapshot{
		Packets:  s.packets.Load(),
		Bytes:    s.bytes.Load(),
		Frames:   s.frames.Load(),
		Dropped:  s.dropped.Load(),
		Rejected: s.rejected.Load(),
		Uptime:   time.Since(s.start),
	}
}

// LogStats writes one summary line through the package logger.
func (s *PacketStats) LogStats() {
	snap := s.Snapshot()
	monitoring.Logf("udpingest: packets=%d bytes=%d frames=%d dropped=%d rejected=%d",
		snap.Packets, snap.Bytes, snap.Frames, snap.Dropped, snap.Rejected)
}
