// Package replay re-applies logged edits to a world tick by tick.
package replay

import (
	"errors"
	"fmt"
	"path/filepath"

	persistlog "github.com/O7410/Industria/internal/persistence/log"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/world"
)

var errDone = errors.New("replay: reached to_tick")

// ErrDigestMismatch is wrapped by Run when a replayed tick diverges from the log.
var ErrDigestMismatch = errors.New("digest mismatch")

type Options struct {
	// FromTick is the first tick whose digest is verified.
	FromTick uint64
	// ToTick stops after this tick (inclusive). 0 runs to the end of the log.
	ToTick uint64
	// NoVerify skips digest checks entirely.
	NoVerify bool
	// Keep, when set, drops every logged edit it returns false for.
	Keep func(tick uint64, e protocol.Edit) bool
}

type Result struct {
	Stepped  uint64
	Checked  uint64
	Dropped  uint64
	LastTick uint64
}

// WorldFromSnapshot builds a world from the config captured in snap and
// restores its state. The world's next tick is the one after the snapshot.
func WorldFromSnapshot(snap snapshot.SnapshotV1, opts ...world.Option) (*world.World, error) {
	w, err := world.New(world.ConfigFromSnapshot(snap), opts...)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

// Run steps w through the entries of files. Entries before the world's
// current tick are skipped; a gap in the log is an error.
func Run(w *world.World, files []string, opt Options) (Result, error) {
	var res Result
	for _, path := range files {
		err := persistlog.ReadTickFile(path, func(entry world.TickLogEntry) error {
			if entry.Tick < w.CurrentTick() {
				return nil
			}
			if opt.ToTick != 0 && entry.Tick > opt.ToTick {
				return errDone
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			edits := entry.Edits
			if opt.Keep != nil {
				edits = make([]protocol.Edit, 0, len(entry.Edits))
				for _, e := range entry.Edits {
					if opt.Keep(entry.Tick, e) {
						edits = append(edits, e)
					} else {
						res.Dropped++
					}
				}
			}
			tick, digest := w.StepOnce(edits)
			res.Stepped++
			res.LastTick = tick
			if opt.NoVerify || tick < opt.FromTick {
				return nil
			}
			res.Checked++
			if digest != entry.Digest {
				return fmt.Errorf("%w at tick %d: got=%s want=%s", ErrDigestMismatch, tick, digest, entry.Digest)
			}
			return nil
		})
		if errors.Is(err, errDone) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// WithinAABB reports whether pos lies in the inclusive box [lo, hi].
func WithinAABB(pos, lo, hi [3]int) bool {
	return pos[0] >= lo[0] && pos[0] <= hi[0] &&
		pos[1] >= lo[1] && pos[1] <= hi[1] &&
		pos[2] >= lo[2] && pos[2] <= hi[2]
}
