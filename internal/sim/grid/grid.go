// Package grid is the in-memory block grid hosting pipe networks. It stores
// pipe cells and terminal blocks and answers adjacency and storage lookups.
package grid

import (
	"errors"
	"fmt"

	"github.com/O7410/Industria/internal/pipe"
)

var (
	// ErrOccupied is returned when a cell already holds another block.
	ErrOccupied = errors.New("cell occupied")
	ErrNoKind   = errors.New("empty resource kind")
)

// Terminal is a non-pipe block exposing one storage per resource kind.
type Terminal struct {
	Storages map[string]*pipe.BasicStorage
	// Faces that expose the storages, indexed by pipe.Direction. All false
	// means every face is open.
	Faces [6]bool
}

func (t *Terminal) open(side pipe.Direction) bool {
	for _, f := range t.Faces {
		if f {
			return t.Faces[side]
		}
	}
	return true
}

// Grid holds at most one block per cell: a pipe of one kind or a terminal.
// It is owned by the world goroutine and does no locking.
type Grid struct {
	pipes     map[pipe.Pos]string
	terminals map[pipe.Pos]*Terminal
}

// New returns an empty grid.
func New() *Grid {
	return &Grid{
		pipes:     make(map[pipe.Pos]string),
		terminals: make(map[pipe.Pos]*Terminal),
	}
}

// IsPipe reports whether pos holds a pipe of kind.
func (g *Grid) IsPipe(kind string, pos pipe.Pos) bool {
	k, ok := g.pipes[pos]
	return ok && k == kind
}

// PipeAt returns the kind of the pipe at pos.
func (g *Grid) PipeAt(pos pipe.Pos) (string, bool) {
	k, ok := g.pipes[pos]
	return k, ok
}

// LookupStorage returns the terminal storage of kind at pos when side, the
// terminal face looking at the asking pipe, is open.
func (g *Grid) LookupStorage(kind string, pos pipe.Pos, side pipe.Direction) (pipe.Storage, bool) {
	t := g.terminals[pos]
	if t == nil || !t.open(side) {
		return nil, false
	}
	s := t.Storages[kind]
	if s == nil {
		return nil, false
	}
	return s, true
}

// SetPipe places a pipe. It reports false when the same pipe is already there.
func (g *Grid) SetPipe(kind string, pos pipe.Pos) (bool, error) {
	if kind == "" {
		return false, ErrNoKind
	}
	if _, ok := g.terminals[pos]; ok {
		return false, fmt.Errorf("pipe %s at %v: %w by a terminal", kind, pos.ToArray(), ErrOccupied)
	}
	if k, ok := g.pipes[pos]; ok {
		if k != kind {
			return false, fmt.Errorf("pipe %s at %v: %w by a %s pipe", kind, pos.ToArray(), ErrOccupied, k)
		}
		return false, nil
	}
	g.pipes[pos] = kind
	return true, nil
}

// RemovePipe clears a pipe of the given kind.
func (g *Grid) RemovePipe(kind string, pos pipe.Pos) bool {
	if k, ok := g.pipes[pos]; !ok || k != kind {
		return false
	}
	delete(g.pipes, pos)
	return true
}

// SetTerminal installs or replaces the storage of one kind in the terminal at
// pos, creating the terminal block if needed. A nil faces slice keeps the
// current faces.
func (g *Grid) SetTerminal(pos pipe.Pos, kind string, s *pipe.BasicStorage, faces []pipe.Direction) error {
	if kind == "" {
		return ErrNoKind
	}
	if s == nil {
		return fmt.Errorf("terminal %s at %v: nil storage", kind, pos.ToArray())
	}
	if k, ok := g.pipes[pos]; ok {
		return fmt.Errorf("terminal at %v: %w by a %s pipe", pos.ToArray(), ErrOccupied, k)
	}
	t := g.terminals[pos]
	if t == nil {
		t = &Terminal{Storages: make(map[string]*pipe.BasicStorage)}
		g.terminals[pos] = t
	}
	t.Storages[kind] = s
	if faces != nil {
		t.Faces = [6]bool{}
		for _, d := range faces {
			t.Faces[d] = true
		}
	}
	return nil
}

// RemoveTerminal drops the storage of kind from the terminal at pos, or the
// whole terminal when kind is empty.
func (g *Grid) RemoveTerminal(pos pipe.Pos, kind string) bool {
	t := g.terminals[pos]
	if t == nil {
		return false
	}
	if kind == "" {
		delete(g.terminals, pos)
		return true
	}
	if _, ok := t.Storages[kind]; !ok {
		return false
	}
	delete(t.Storages, kind)
	if len(t.Storages) == 0 {
		delete(g.terminals, pos)
	}
	return true
}

// Terminal returns the terminal at pos or nil.
func (g *Grid) Terminal(pos pipe.Pos) *Terminal { return g.terminals[pos] }

// Pipes returns pipe positions of one kind in canonical order.
func (g *Grid) Pipes(kind string) []pipe.Pos {
	var out []pipe.Pos
	for p, k := range g.pipes {
		if k == kind {
			out = append(out, p)
		}
	}
	pipe.SortPositions(out)
	return out
}

// TerminalPositions returns terminal positions in canonical order.
func (g *Grid) TerminalPositions() []pipe.Pos {
	return pipe.SortedPositions(g.terminals)
}

// PipeCount and TerminalCount report occupied cells.
func (g *Grid) PipeCount() int     { return len(g.pipes) }
func (g *Grid) TerminalCount() int { return len(g.terminals) }

// Reset empties the grid.
func (g *Grid) Reset() {
	g.pipes = make(map[pipe.Pos]string)
	g.terminals = make(map[pipe.Pos]*Terminal)
}
