package world

import (
	"context"
	"fmt"
	"sort"

	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/sim/tuning"
)

type snapshotReq struct {
	Resp chan snapshot.SnapshotV1
}

// RequestSnapshot asks the world loop for a snapshot taken right after the
// next tick completes.
func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := snapshotReq{Resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case w.snapReq <- req:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-req.Resp:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func (w *World) handleSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	// The tick counter was already advanced by step.
	snap := w.ExportSnapshot(w.tick.Load() - 1)
	for _, r := range reqs {
		r.Resp <- snap
	}
}

// ExportSnapshot captures the state after the given tick. World goroutine only.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Digest:  w.stateDigest(nowTick),
		},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		SyncEveryTicks:     w.cfg.SyncEveryTicks,
		Namespace:          w.cfg.ID,
		NextNetworkSeq:     w.reg.NextSeq(),
	}

	names := make([]string, 0, len(w.cfg.Kinds))
	for name := range w.cfg.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		k := w.cfg.Kinds[name]
		snap.Kinds = append(snap.Kinds, snapshot.KindV1{
			Name:            name,
			TransferRate:    k.TransferRate,
			DissipationRate: k.DissipationRate,
			CentralStorage:  k.CentralStorage,
			Capacity:        k.Capacity,
			TrackDistances:  k.TrackDistances,
		})
	}

	for _, rec := range pipe.EncodeSet(w.reg.All()) {
		nv := snapshot.NetworkV1{ID: rec.ID, Kind: rec.Kind, CentralAmount: rec.CentralAmount}
		nv.Pipes = make([]snapshot.PipeV1, 0, len(rec.Pipes))
		for _, p := range rec.Pipes {
			nv.Pipes = append(nv.Pipes, snapshot.PipeV1{Pos: p.Pos, Amount: p.Amount})
		}
		snap.Networks = append(snap.Networks, nv)
	}

	for _, p := range w.grid.TerminalPositions() {
		t := w.grid.Terminal(p)
		tv := snapshot.TerminalV1{Pos: p.ToArray(), Faces: t.Faces}
		kinds := make([]string, 0, len(t.Storages))
		for k := range t.Storages {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			s := t.Storages[k]
			tv.Storages = append(tv.Storages, snapshot.TerminalStorageV1{
				Kind:     k,
				Amount:   s.Amount(),
				Capacity: s.Capacity(),
				Insert:   s.SupportsInsertion(),
				Extract:  s.SupportsExtraction(),
			})
		}
		snap.Terminals = append(snap.Terminals, tv)
	}
	return snap
}

// ConfigFromSnapshot rebuilds the world config a snapshot was taken with.
func ConfigFromSnapshot(snap snapshot.SnapshotV1) WorldConfig {
	cfg := WorldConfig{
		ID:                 snap.Header.WorldID,
		TickRateHz:         snap.TickRate,
		SnapshotEveryTicks: snap.SnapshotEveryTicks,
		SyncEveryTicks:     snap.SyncEveryTicks,
	}
	if len(snap.Kinds) > 0 {
		cfg.Kinds = make(map[string]tuning.KindTuning, len(snap.Kinds))
		for _, k := range snap.Kinds {
			cfg.Kinds[k.Name] = tuning.KindTuning{
				TransferRate:    k.TransferRate,
				DissipationRate: k.DissipationRate,
				CentralStorage:  k.CentralStorage,
				Capacity:        k.Capacity,
				TrackDistances:  k.TrackDistances,
			}
		}
	}
	return cfg
}

// ImportSnapshot replaces the world state with snap. The next tick to run is
// the one after the snapshot tick. Must be called before Run.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("%w: %d", snapshot.ErrVersion, snap.Header.Version)
	}
	if snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q, want %q", snap.Header.WorldID, w.cfg.ID)
	}
	if snap.Namespace != "" && snap.Namespace != w.cfg.ID {
		return fmt.Errorf("snapshot namespace %q, want %q", snap.Namespace, w.cfg.ID)
	}

	fail := func(err error) error {
		w.grid.Reset()
		w.reg.Clear()
		return err
	}

	w.grid.Reset()
	records := make([]pipe.Record, 0, len(snap.Networks))
	for _, nv := range snap.Networks {
		rec := pipe.Record{ID: nv.ID, Kind: nv.Kind, CentralAmount: nv.CentralAmount}
		for _, p := range nv.Pipes {
			if _, err := w.grid.SetPipe(nv.Kind, pipe.PosFromArray(p.Pos)); err != nil {
				return fail(fmt.Errorf("network %s: %w", nv.ID, err))
			}
			rec.Pipes = append(rec.Pipes, pipe.PipeRecord{Pos: p.Pos, Amount: p.Amount})
		}
		records = append(records, rec)
	}
	for _, tv := range snap.Terminals {
		pos := pipe.PosFromArray(tv.Pos)
		for _, sv := range tv.Storages {
			s := pipe.NewStorage(sv.Capacity, sv.Insert, sv.Extract)
			s.SetAmount(sv.Amount)
			if err := w.grid.SetTerminal(pos, sv.Kind, s, nil); err != nil {
				return fail(fmt.Errorf("terminal %v: %w", tv.Pos, err))
			}
		}
		if t := w.grid.Terminal(pos); t != nil {
			t.Faces = tv.Faces
		}
	}

	if err := w.reg.Restore(records, snap.NextNetworkSeq); err != nil {
		return fail(err)
	}
	// Freshly restored networks are all dirty; clients get them through a
	// full sync instead.
	w.reg.DrainDirty()
	w.tick.Store(snap.Header.Tick + 1)
	return nil
}
