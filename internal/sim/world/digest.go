package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// stateDigest hashes the tick, the network state and every terminal storage.
// Two worlds fed the same edit stream produce the same digest at every tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	writeBool := func(b bool) {
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	writeU64(nowTick)
	h.Write([]byte(w.reg.Digest()))

	for _, p := range w.grid.TerminalPositions() {
		t := w.grid.Terminal(p)
		writeU64(uint64(int64(p.X)))
		writeU64(uint64(int64(p.Y)))
		writeU64(uint64(int64(p.Z)))
		for _, f := range t.Faces {
			writeBool(f)
		}
		kinds := make([]string, 0, len(t.Storages))
		for k := range t.Storages {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			s := t.Storages[k]
			h.Write([]byte(k))
			writeU64(math.Float64bits(s.Amount()))
			writeU64(math.Float64bits(s.Capacity()))
			writeBool(s.SupportsInsertion())
			writeBool(s.SupportsExtraction())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the digest of the last completed tick.
func (w *World) Digest() string {
	cur := w.tick.Load()
	if cur > 0 {
		cur--
	}
	return w.stateDigest(cur)
}
