package pipe

import (
	"math"
	"testing"
)

// fakeWorld is a grid with terminals that expose the same storage on every side.
type fakeWorld struct {
	pipes     map[string]map[Pos]bool
	terminals map[string]map[Pos]*BasicStorage
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		pipes:     map[string]map[Pos]bool{},
		terminals: map[string]map[Pos]*BasicStorage{},
	}
}

func (w *fakeWorld) IsPipe(kind string, pos Pos) bool { return w.pipes[kind][pos] }

func (w *fakeWorld) LookupStorage(kind string, pos Pos, _ Direction) (Storage, bool) {
	s, ok := w.terminals[kind][pos]
	if !ok {
		return nil, false
	}
	return s, true
}

func (w *fakeWorld) setPipe(kind string, pos Pos) {
	if w.pipes[kind] == nil {
		w.pipes[kind] = map[Pos]bool{}
	}
	w.pipes[kind][pos] = true
}

func (w *fakeWorld) clearPipe(kind string, pos Pos) {
	delete(w.pipes[kind], pos)
}

func (w *fakeWorld) setTerminal(kind string, pos Pos, amount float64, insert, extract bool) *BasicStorage {
	if w.terminals[kind] == nil {
		w.terminals[kind] = map[Pos]*BasicStorage{}
	}
	s := NewStorage(0, insert, extract)
	s.SetAmount(amount)
	w.terminals[kind][pos] = s
	return s
}

// transferOnly is heat without passive loss, used where exact transfer
// numbers are checked.
func transferOnly() Kind {
	k := HeatKind()
	k.Loss = nil
	return k
}

// place puts pipes into both the fake grid and the registry.
func place(t *testing.T, w *fakeWorld, e *Editor, kind string, ps ...Pos) {
	t.Helper()
	for _, p := range ps {
		w.setPipe(kind, p)
		e.PlacePipe(kind, p)
	}
}

func remove(t *testing.T, w *fakeWorld, e *Editor, kind string, p Pos) EditResult {
	t.Helper()
	w.clearPipe(kind, p)
	return e.RemovePipe(kind, p)
}

func line(from Pos, n int, d Direction) []Pos {
	out := make([]Pos, 0, n)
	p := from
	for i := 0; i < n; i++ {
		out = append(out, p)
		p = p.Offset(d)
	}
	return out
}

func setAmount(t *testing.T, n *Network, p Pos, v float64) {
	t.Helper()
	s, ok := n.Storage(p)
	if !ok {
		t.Fatalf("no storage for %v in %s", p, n.ID())
	}
	s.SetAmount(v)
}

func amountAt(t *testing.T, n *Network, p Pos) float64 {
	t.Helper()
	s, ok := n.Storage(p)
	if !ok {
		t.Fatalf("no storage for %v in %s", p, n.ID())
	}
	return s.Amount()
}

func approx(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }
