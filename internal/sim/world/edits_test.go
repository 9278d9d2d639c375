package world

import (
	"sync"
	"testing"
	"time"

	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/protocol"
)

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	steps    int
	created  int
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{outcomes: map[string]int{}} }

func (r *fakeRecorder) Hooks() pipe.Hooks {
	return pipe.Hooks{Created: func(*pipe.Network) { r.created++ }}
}

func (r *fakeRecorder) ObserveEdit(op, kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[op+"/"+outcome]++
}

func (r *fakeRecorder) ObserveStep(time.Duration, *pipe.Registry) { r.steps++ }

func TestApplyEdit_Outcomes(t *testing.T) {
	rec := newFakeRecorder()
	w, err := New(testConfig(), WithRecorder(rec))
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	w.StepOnce([]protocol.Edit{
		place(pipe.KindHeat, 0, 0, 0),
		place(pipe.KindHeat, 0, 0, 0), // already there
		place(pipe.KindFluid, 0, 0, 0),
		place("plasma", 1, 1, 1),
		terminal(pipe.KindHeat, 0, 0, 0, 5),
		remove(pipe.KindFluid, 9, 9, 9),
		{Op: "EXPLODE", Kind: pipe.KindHeat},
	})

	want := map[string]int{
		protocol.OpPlacePipe + "/" + OutcomeApplied:    1,
		protocol.OpPlacePipe + "/" + OutcomeNoOp:       1,
		protocol.OpPlacePipe + "/" + OutcomeRejected:   2,
		protocol.OpSetTerminal + "/" + OutcomeRejected: 1,
		protocol.OpRemovePipe + "/" + OutcomeNoOp:      1,
		"EXPLODE/" + OutcomeRejected:                   1,
	}
	for k, v := range want {
		if rec.outcomes[k] != v {
			t.Fatalf("outcome %s=%d want %d (all=%v)", k, rec.outcomes[k], v, rec.outcomes)
		}
	}
	if rec.steps != 1 || rec.created != 1 {
		t.Fatalf("steps=%d created=%d", rec.steps, rec.created)
	}
	if kind, ok := w.Grid().PipeAt(pipe.Pos{}); !ok || kind != pipe.KindHeat {
		t.Fatalf("grid cell holds %q,%v", kind, ok)
	}
	if w.Registry().Count(pipe.KindHeat) != 1 || w.Registry().Count(pipe.KindFluid) != 0 {
		t.Fatalf("unexpected network counts")
	}
}

func TestValidateEdit_Codes(t *testing.T) {
	w := newTestWorld(t)
	cases := []struct {
		name string
		e    protocol.Edit
		code string
	}{
		{"ok", place(pipe.KindHeat, 0, 0, 0), ""},
		{"unknown kind", place("plasma", 0, 0, 0), protocol.ErrUnknownKind},
		{"unknown op", protocol.Edit{Op: "NOPE"}, protocol.ErrBadRequest},
		{"missing spec", protocol.Edit{Op: protocol.OpSetTerminal, Kind: pipe.KindHeat}, protocol.ErrBadRequest},
		{"bad face", terminal(pipe.KindHeat, 0, 0, 0, 1, "left"), protocol.ErrBadRequest},
		{"negative", terminal(pipe.KindHeat, 0, 0, 0, -1), protocol.ErrBadRequest},
		{"remove all", protocol.Edit{Op: protocol.OpRemoveTerminal}, ""},
	}
	for _, tc := range cases {
		if got := ErrorCode(w.ValidateEdit(tc.e)); got != tc.code {
			t.Fatalf("%s: code=%q want %q", tc.name, got, tc.code)
		}
	}

	w.StepOnce([]protocol.Edit{terminal(pipe.KindHeat, 0, 0, 0, 1)})
	_, err := w.applyEdit(place(pipe.KindHeat, 0, 0, 0))
	if ErrorCode(err) != protocol.ErrOccupied {
		t.Fatalf("pipe on terminal: %v", err)
	}
}

func TestTerminal_FacesGateExchange(t *testing.T) {
	w := newTestWorld(t)
	// Terminal at the origin only exposes its top; the pipe sits to the east.
	w.StepOnce([]protocol.Edit{
		terminal(pipe.KindFluid, 0, 0, 0, 100, "up"),
		place(pipe.KindFluid, 1, 0, 0),
	})
	n := w.Registry().NetworkAt(pipe.KindFluid, pipe.Pos{X: 1})
	if n == nil || len(n.ConnectedBlocks()) != 0 {
		t.Fatalf("closed face connected: %+v", n)
	}
	if got := n.TotalAmount(); got != 0 {
		t.Fatalf("pipe received %v through a closed face", got)
	}

	// Opening the east face connects the terminal.
	w.StepOnce([]protocol.Edit{terminal(pipe.KindFluid, 0, 0, 0, 100, "east")})
	if len(n.ConnectedBlocks()) != 1 {
		t.Fatalf("open face not connected")
	}
	if got := n.TotalAmount(); got <= 0 {
		t.Fatalf("pipe amount after open face = %v", got)
	}
	term := w.Grid().Terminal(pipe.Pos{})
	if term.Storages[pipe.KindFluid].Amount()+n.TotalAmount() != 100 {
		t.Fatalf("fluid not conserved: terminal=%v pipe=%v", term.Storages[pipe.KindFluid].Amount(), n.TotalAmount())
	}
}

func TestSetTerminal_EmptyFacesKeepRestriction(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce([]protocol.Edit{terminal(pipe.KindFluid, 0, 0, 0, 100, "up")})
	w.StepOnce([]protocol.Edit{
		terminal(pipe.KindHeat, 0, 0, 0, 50),
		terminal(pipe.KindFluid, 0, 0, 0, 40),
	})
	term := w.Grid().Terminal(pipe.Pos{})
	if term == nil {
		t.Fatalf("terminal missing")
	}
	var want [6]bool
	want[pipe.Up] = true
	if term.Faces != want {
		t.Fatalf("faces=%v, want only up", term.Faces)
	}
	if got := term.Storages[pipe.KindFluid].Amount(); got != 40 {
		t.Fatalf("fluid storage not replaced: %v", got)
	}

	// A pipe on a closed side stays disconnected.
	w.StepOnce([]protocol.Edit{place(pipe.KindHeat, 1, 0, 0)})
	if n := w.Registry().NetworkAt(pipe.KindHeat, pipe.Pos{X: 1}); n == nil || len(n.ConnectedBlocks()) != 0 {
		t.Fatalf("closed face connected: %+v", n)
	}
}

func TestRemoveTerminal_DisconnectsNetwork(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce([]protocol.Edit{
		terminal(pipe.KindHeat, 0, 0, 0, 10),
		terminal(pipe.KindFluid, 0, 0, 0, 10),
		place(pipe.KindHeat, 1, 0, 0),
	})
	n := w.Registry().NetworkAt(pipe.KindHeat, pipe.Pos{X: 1})
	if len(n.ConnectedBlocks()) != 1 {
		t.Fatalf("terminal not connected")
	}
	w.StepOnce([]protocol.Edit{{Op: protocol.OpRemoveTerminal, Kind: pipe.KindHeat, Pos: [3]int{0, 0, 0}}})
	if len(n.ConnectedBlocks()) != 0 {
		t.Fatalf("removed storage still connected")
	}
	if w.Grid().Terminal(pipe.Pos{}) == nil {
		t.Fatalf("terminal with a remaining fluid storage was dropped")
	}
}
