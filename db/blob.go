package db

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/gritlab/sandtable/internal/terrain"
)

// snapshotBlob is the gob schema for stored snapshots. It is decoupled from
// terrain.Snapshot so the on-disk format stays stable if the in-memory type
// grows fields.
type snapshotBlob struct {
	Version int
	Width   int
	Height  int
	Tick    uint64
	Heights []float64
	Water   []float64
}

const snapshotBlobVersion = 1

func encodeSnapshotBlob(snap *terrain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	err := enc.Encode(snapshotBlob{
		Version: snapshotBlobVersion,
		Width:   snap.Width,
		Height:  snap.Height,
		Tick:    snap.Tick,
		Heights: snap.Heights,
		Water:   snap.Water,
	})
	if err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshotBlob(blob []byte) (*terrain.Snapshot, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot blob: %w", err)
	}
	defer gz.Close()

	var sb snapshotBlob
	if err := gob.NewDecoder(gz).Decode(&sb); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot blob: %w", err)
	}
	if sb.Version != snapshotBlobVersion {
		return nil, fmt.Errorf("unsupported snapshot blob version %d", sb.Version)
	}
	if len(sb.Heights) != sb.Width*sb.Height || len(sb.Water) != sb.Width*sb.Height {
		return nil, fmt.Errorf("snapshot blob cell counts do not match %dx%d grid", sb.Width, sb.Height)
	}

	return &terrain.Snapshot{
		Width:   sb.Width,
		Height:  sb.Height,
		Tick:    sb.Tick,
		Heights: sb.Heights,
		Water:   sb.Water,
	}, nil
}
