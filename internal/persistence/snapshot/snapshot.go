package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters (captured for deterministic replay/resume).
	TickRate           int      `json:"tick_rate_hz"`
	SnapshotEveryTicks int      `json:"snapshot_every_ticks"`
	SyncEveryTicks     int      `json:"sync_every_ticks"`
	Kinds              []KindV1 `json:"kinds"`

	// Network id derivation.
	Namespace      string `json:"namespace"`
	NextNetworkSeq uint64 `json:"next_network_seq"`

	Networks  []NetworkV1  `json:"networks"`
	Terminals []TerminalV1 `json:"terminals"`
}

type KindV1 struct {
	Name            string  `json:"name"`
	TransferRate    float64 `json:"transfer_rate"`
	DissipationRate float64 `json:"dissipation_rate"`
	CentralStorage  bool    `json:"central_storage"`
	Capacity        float64 `json:"capacity"`
	TrackDistances  bool    `json:"track_distances"`
}

type NetworkV1 struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	// CentralAmount is nil for per-pipe kinds.
	CentralAmount *float64 `json:"central_amount,omitempty"`
	Pipes         []PipeV1 `json:"pipes"`
}

type PipeV1 struct {
	Pos    [3]int  `json:"pos"`
	Amount float64 `json:"amount"`
}

type TerminalV1 struct {
	Pos      [3]int              `json:"pos"`
	Faces    [6]bool             `json:"faces"`
	Storages []TerminalStorageV1 `json:"storages"`
}

type TerminalStorageV1 struct {
	Kind     string  `json:"kind"`
	Amount   float64 `json:"amount"`
	Capacity float64 `json:"capacity"`
	Insert   bool    `json:"insert"`
	Extract  bool    `json:"extract"`
}

// WriteSnapshot writes a zstd stream holding a JSON header line followed by
// the gob-encoded snapshot. The file appears at path only once complete.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is informational; gob carries the header too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header json: %w", err)
	}
	return h, nil
}
