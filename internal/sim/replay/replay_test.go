package replay

import (
	"errors"
	"strings"
	"testing"

	"github.com/O7410/Industria/internal/pipe"
	persistlog "github.com/O7410/Industria/internal/persistence/log"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/tuning"
	"github.com/O7410/Industria/internal/sim/world"
)

func place(kind string, x, y, z int) protocol.Edit {
	return protocol.Edit{Op: protocol.OpPlacePipe, Kind: kind, Pos: [3]int{x, y, z}}
}

func edits(tick uint64) []protocol.Edit {
	switch tick {
	case 0:
		return []protocol.Edit{
			{Op: protocol.OpSetTerminal, Kind: pipe.KindHeat, Pos: [3]int{-1, 0, 0},
				Terminal: &protocol.TerminalSpec{Amount: 400, Insert: true, Extract: true}},
			place(pipe.KindHeat, 0, 0, 0),
			place(pipe.KindHeat, 2, 0, 0),
		}
	case 2:
		return []protocol.Edit{place(pipe.KindHeat, 1, 0, 0), place(pipe.KindEnergy, 0, 4, 0)}
	case 6:
		return []protocol.Edit{{Op: protocol.OpRemovePipe, Kind: pipe.KindHeat, Pos: [3]int{1, 0, 0}}}
	}
	return nil
}

func newWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.ConfigFromTuning("replay-test", tuning.Defaults()))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

// record runs ticks [0, n) into a tick log and returns the log files plus a
// snapshot taken after snapAt.
func record(t *testing.T, n, snapAt uint64) ([]string, snapshot.SnapshotV1) {
	t.Helper()
	dir := t.TempDir()
	w := newWorld(t)
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	var snap snapshot.SnapshotV1
	for tick := uint64(0); tick < n; tick++ {
		w.StepOnce(edits(tick))
		if tick == snapAt {
			snap = w.ExportSnapshot(tick)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	files, err := persistlog.ListTickFiles(persistlog.TickDir(dir))
	if err != nil || len(files) == 0 {
		t.Fatalf("tick files=%v err=%v", files, err)
	}
	return files, snap
}

func TestReplay_FromGenesis(t *testing.T) {
	files, _ := record(t, 12, 4)
	res, err := Run(newWorld(t), files, Options{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 12 || res.LastTick != 11 {
		t.Fatalf("res=%+v", res)
	}
}

func TestReplay_FromSnapshot(t *testing.T) {
	files, snap := record(t, 12, 4)
	w, err := WorldFromSnapshot(snap)
	if err != nil {
		t.Fatalf("WorldFromSnapshot: %v", err)
	}
	if w.CurrentTick() != 5 {
		t.Fatalf("resumed at tick %d, want 5", w.CurrentTick())
	}
	res, err := Run(w, files, Options{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 7 || res.LastTick != 11 {
		t.Fatalf("res=%+v", res)
	}
}

func TestReplay_Window(t *testing.T) {
	files, _ := record(t, 12, 4)
	res, err := Run(newWorld(t), files, Options{FromTick: 3, ToTick: 8})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 6 || res.LastTick != 8 {
		t.Fatalf("res=%+v", res)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)
	w := newWorld(t)
	for tick := uint64(0); tick < 4; tick++ {
		_, digest := w.StepOnce(edits(tick))
		if tick == 2 {
			digest = "tampered"
		}
		if err := tl.WriteTick(world.TickLogEntry{Tick: tick, Edits: edits(tick), Digest: digest}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := persistlog.ListTickFiles(persistlog.TickDir(dir))

	res, err := Run(newWorld(t), files, Options{})
	if !errors.Is(err, ErrDigestMismatch) || !strings.Contains(err.Error(), "at tick 2") {
		t.Fatalf("err=%v", err)
	}
	if res.Checked != 3 {
		t.Fatalf("checked=%d, want 3", res.Checked)
	}
}

func TestRun_KeepFilterRewritesHistory(t *testing.T) {
	files, _ := record(t, 12, 4)

	// Dropping the bridge placed at tick 2 keeps the heat line split in two.
	lo, hi := [3]int{1, 0, 0}, [3]int{1, 0, 0}
	w := newWorld(t)
	res, err := Run(w, files, Options{
		NoVerify: true,
		Keep: func(tick uint64, e protocol.Edit) bool {
			return tick < 2 || !WithinAABB(e.Pos, lo, hi)
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Dropped != 2 || res.Checked != 0 || res.Stepped != 12 {
		t.Fatalf("res=%+v", res)
	}
	if got := w.Registry().Count(pipe.KindHeat); got != 2 {
		t.Fatalf("heat networks=%d, want 2", got)
	}
	if w.Grid().IsPipe(pipe.KindHeat, pipe.Pos{X: 1}) {
		t.Fatalf("dropped pipe present")
	}
}

func TestWithinAABB(t *testing.T) {
	lo, hi := [3]int{-2, 0, -2}, [3]int{2, 4, 2}
	if !WithinAABB([3]int{2, 4, -2}, lo, hi) {
		t.Fatalf("corner should be inside")
	}
	if WithinAABB([3]int{3, 0, 0}, lo, hi) {
		t.Fatalf("x=3 should be outside")
	}
}

func TestReplay_GapIsAnError(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)
	_ = tl.WriteTick(world.TickLogEntry{Tick: 0, Digest: "x"})
	_ = tl.WriteTick(world.TickLogEntry{Tick: 5, Digest: "y"})
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := persistlog.ListTickFiles(persistlog.TickDir(dir))

	// Verification starts past the first entry so only the gap can fail.
	if _, err := Run(newWorld(t), files, Options{FromTick: 3}); err == nil || !strings.Contains(err.Error(), "tick gap") {
		t.Fatalf("err=%v", err)
	}
}
