package pipe

import "testing"

func TestSourceDistances_StraightLine(t *testing.T) {
	w := newFakeWorld()
	src := Pos{X: 0}
	w.setTerminal(KindHeat, src, 500, false, true)
	reg := NewRegistry(w, nil)
	e := NewEditor(reg)
	ps := line(Pos{X: 1}, 5, East)
	place(t, w, e, KindHeat, ps...)

	n := reg.NetworkAt(KindHeat, ps[0])
	if got := n.Sources(); len(got) != 1 || got[0] != src {
		t.Fatalf("Sources=%v, want [%v]", got, src)
	}
	for i, p := range ps {
		d, ok := n.Distance(src, p)
		if !ok || d != i {
			t.Fatalf("Distance(%v)=%d,%v want %d", p, d, ok, i)
		}
	}
}

func TestSourceDistances_InsertOnlyTerminalIsNotASource(t *testing.T) {
	w := newFakeWorld()
	w.setTerminal(KindHeat, Pos{}, 0, true, false)
	reg := NewRegistry(w, nil)
	e := NewEditor(reg)
	place(t, w, e, KindHeat, line(Pos{X: 1}, 3, East)...)

	n := reg.NetworkAt(KindHeat, Pos{X: 1})
	if len(n.ConnectedBlocks()) != 1 {
		t.Fatalf("terminal not connected")
	}
	if got := n.Sources(); len(got) != 0 {
		t.Fatalf("Sources=%v, want none", got)
	}
}

func TestSourceDistances_MultipleAdjacentPipesStartAtZero(t *testing.T) {
	// A U shape around the source: both arms touch it.
	w := newFakeWorld()
	src := Pos{X: 1, Z: 1}
	w.setTerminal(KindHeat, src, 10, true, true)
	reg := NewRegistry(w, nil)
	e := NewEditor(reg)
	arms := []Pos{
		{X: 0, Z: 1}, {X: 0, Z: 2}, {X: 1, Z: 2}, {X: 2, Z: 2}, {X: 2, Z: 1},
	}
	place(t, w, e, KindHeat, arms...)

	n := reg.NetworkAt(KindHeat, arms[0])
	want := map[Pos]int{
		{X: 0, Z: 1}: 0,
		{X: 1, Z: 2}: 0,
		{X: 2, Z: 1}: 0,
		{X: 0, Z: 2}: 1,
		{X: 2, Z: 2}: 1,
	}
	got := n.SourceDistances()[src]
	if len(got) != len(want) {
		t.Fatalf("distances=%v, want %v", got, want)
	}
	for p, d := range want {
		if got[p] != d {
			t.Fatalf("distance at %v=%d, want %d", p, got[p], d)
		}
	}

	if s, d, ok := n.NearestSource(Pos{X: 0, Z: 2}); !ok || s != src || d != 1 {
		t.Fatalf("NearestSource=%v,%d,%v", s, d, ok)
	}
}

func TestSourceDistances_RecomputedOnTerminalChange(t *testing.T) {
	w := newFakeWorld()
	reg := NewRegistry(w, nil)
	e := NewEditor(reg)
	place(t, w, e, KindHeat, line(Pos{X: 1}, 2, East)...)
	n := reg.NetworkAt(KindHeat, Pos{X: 1})
	if len(n.Sources()) != 0 {
		t.Fatalf("unexpected sources before terminal placement")
	}

	w.setTerminal(KindHeat, Pos{}, 10, true, true)
	res := e.TerminalChanged(Pos{})
	if res.NoOp || len(res.Touched) != 1 || res.Touched[0] != n.ID() {
		t.Fatalf("TerminalChanged=%+v", res)
	}
	if d, ok := n.Distance(Pos{}, Pos{X: 2}); !ok || d != 1 {
		t.Fatalf("Distance=%d,%v want 1", d, ok)
	}

	delete(w.terminals[KindHeat], Pos{})
	e.TerminalChanged(Pos{})
	if len(n.Sources()) != 0 || len(n.ConnectedBlocks()) != 0 {
		t.Fatalf("terminal removal not observed: sources=%v connected=%v", n.Sources(), n.ConnectedBlocks())
	}
}

func TestSourceDistances_FluidDoesNotTrack(t *testing.T) {
	w := newFakeWorld()
	w.setTerminal(KindFluid, Pos{}, 10, true, true)
	reg := NewRegistry(w, nil)
	e := NewEditor(reg)
	place(t, w, e, KindFluid, Pos{X: 1})
	n := reg.NetworkAt(KindFluid, Pos{X: 1})
	if len(n.Sources()) != 0 {
		t.Fatalf("fluid network tracked sources %v", n.Sources())
	}
}
