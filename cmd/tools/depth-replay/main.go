//go:build pcap
// +build pcap

// Command depth-replay replays UDP depth frame traffic from a pcap capture
// against a running server's ingest port. It preserves inter-packet timing
// unless -rate overrides it.
//
// Build with: go build -tags pcap ./cmd/tools/depth-replay
package main

import (
	"flag"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	pcapFile := flag.String("pcap", "", "pcap file to replay (required)")
	addr := flag.String("addr", "127.0.0.1:9876", "UDP destination address")
	rate := flag.Float64("rate", 0, "fixed packets per second (0 preserves capture timing)")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("Failed to open pcap: %v", err)
	}
	defer handle.Close()

	var interval time.Duration
	if *rate > 0 {
		interval = time.Duration(float64(time.Second) / *rate)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	var sent int
	var lastTS time.Time
	for packet := range packetSource.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		payload := udpLayer.(*layers.UDP).Payload
		if len(payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		switch {
		case interval > 0:
			time.Sleep(interval)
		case !lastTS.IsZero() && ts.After(lastTS):
			time.Sleep(ts.Sub(lastTS))
		}
		lastTS = ts

		if _, err := conn.Write(payload); err != nil {
			log.Fatalf("Failed to send packet: %v", err)
		}
		sent++
		if sent%100 == 0 {
			log.Printf("%d packets sent", sent)
		}
	}
	log.Printf("✓ Replayed %d packets to %s", sent, *addr)
}
