package pipe

import (
	"github.com/google/uuid"
)

// Edit operation names, shared with tick logs and sync consumers.
const (
	OpPlacePipe       = "PLACE_PIPE"
	OpRemovePipe      = "REMOVE_PIPE"
	OpTerminalChanged = "TERMINAL_CHANGED"
)

// EditResult describes what one topology edit did.
type EditResult struct {
	Op   string
	Kind string
	Pos  Pos

	// Network is the network that owns Pos after a placement, or the network
	// Pos was removed from.
	Network uuid.UUID
	// Absorbed lists networks drained into a fresh merge target.
	Absorbed []uuid.UUID
	// Created lists networks created by the edit (singleton, merge target or
	// split components).
	Created []uuid.UUID
	// Destroyed lists networks removed from the registry by the edit.
	Destroyed []uuid.UUID
	// Touched lists every live network whose membership or connectivity changed.
	Touched []uuid.UUID

	NoOp bool
}

// Editor applies pipe placements and removals to a Registry, deciding when to
// extend, merge or split networks.
type Editor struct {
	reg *Registry
}

func NewEditor(reg *Registry) *Editor {
	return &Editor{reg: reg}
}

func (e *Editor) Registry() *Registry { return e.reg }

// PlacePipe records a new pipe at pos. A position that is already tracked, or
// an unknown kind, is a no-op.
func (e *Editor) PlacePipe(kind string, pos Pos) EditResult {
	res := EditResult{Op: OpPlacePipe, Kind: kind, Pos: pos}
	sh := e.reg.shards[kind]
	if sh == nil || sh.owners[pos] != nil {
		res.NoOp = true
		return res
	}

	touched := make(map[uuid.UUID]*Network, 6)
	for _, np := range pos.Neighbors() {
		if n := sh.owners[np]; n != nil {
			touched[n.id] = n
		}
	}

	var target *Network
	switch len(touched) {
	case 0:
		target = e.reg.create(kind)
		res.Created = append(res.Created, target.id)
	case 1:
		for _, n := range touched {
			target = n
		}
	default:
		target = e.reg.create(kind)
		res.Created = append(res.Created, target.id)
		for _, n := range sortedNetworks(touched) {
			target.MovePipesFrom(n, n.Pipes())
			e.reg.destroy(n)
			res.Absorbed = append(res.Absorbed, n.id)
			res.Destroyed = append(res.Destroyed, n.id)
		}
		if e.reg.hooks.Merged != nil {
			e.reg.hooks.Merged(kind, len(res.Absorbed))
		}
		e.reg.log.Printf("merge kind=%s into=%s absorbed=%d at=%v", kind, target.id, len(res.Absorbed), pos.ToArray())
	}

	target.AddPipe(pos)
	e.reg.MarkDirty(target)
	res.Network = target.id
	res.Touched = []uuid.UUID{target.id}
	return res
}

// RemovePipe drops the pipe at pos. If the owning network falls apart, the
// largest component keeps the network and every other component moves into
// a fresh one.
func (e *Editor) RemovePipe(kind string, pos Pos) EditResult {
	res := EditResult{Op: OpRemovePipe, Kind: kind, Pos: pos}
	sh := e.reg.shards[kind]
	if sh == nil {
		res.NoOp = true
		return res
	}
	n := sh.owners[pos]
	if n == nil {
		res.NoOp = true
		return res
	}
	res.Network = n.id

	n.RemovePipe(pos)
	if n.Len() == 0 {
		e.reg.destroy(n)
		res.Destroyed = append(res.Destroyed, n.id)
		return res
	}

	var seeds []Pos
	for _, np := range pos.Neighbors() {
		if n.Has(np) {
			seeds = append(seeds, np)
		}
	}
	comps := splitComponents(n.pipes, seeds)
	res.Touched = append(res.Touched, n.id)
	e.reg.MarkDirty(n)
	if len(comps) < 2 {
		return res
	}

	for _, c := range comps[1:] {
		m := e.reg.create(kind)
		m.MovePipesFrom(n, c.pipes)
		e.reg.MarkDirty(m)
		res.Created = append(res.Created, m.id)
		res.Touched = append(res.Touched, m.id)
	}
	if e.reg.hooks.Split != nil {
		e.reg.hooks.Split(kind, len(comps))
	}
	e.reg.log.Printf("split kind=%s network=%s parts=%d at=%v", kind, n.id, len(comps), pos.ToArray())
	return res
}

// TerminalChanged refreshes connectivity of every network next to pos after
// a terminal there appeared, vanished or changed capabilities.
func (e *Editor) TerminalChanged(pos Pos) EditResult {
	res := EditResult{Op: OpTerminalChanged, Pos: pos}
	for _, k := range e.reg.kinds {
		sh := e.reg.shards[k.Name]
		seen := make(map[uuid.UUID]*Network, 6)
		for _, np := range pos.Neighbors() {
			if n := sh.owners[np]; n != nil {
				seen[n.id] = n
			}
		}
		for _, n := range sortedNetworks(seen) {
			n.OnConnectedBlocksChanged()
			e.reg.MarkDirty(n)
			res.Touched = append(res.Touched, n.id)
		}
	}
	res.NoOp = len(res.Touched) == 0
	return res
}
