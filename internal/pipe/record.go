package pipe

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnknownKind is returned when a record names a kind the registry does not serve.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrBadRecord is returned for records that cannot describe a live network.
	ErrBadRecord = errors.New("bad network record")
)

// Record is the flat form of a network used for snapshots and for sync
// messages alike.
type Record struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	// CentralAmount is set only for kinds with a central storage.
	CentralAmount *float64     `json:"central_storage_amount,omitempty"`
	Pipes         []PipeRecord `json:"pipes"`
}

type PipeRecord struct {
	Pos    [3]int  `json:"pos"`
	Amount float64 `json:"amount,omitempty"`
}

// Encode returns the record of n with pipes in canonical order.
func Encode(n *Network) Record {
	rec := Record{
		ID:    n.id.String(),
		Kind:  n.kind.Name,
		Pipes: make([]PipeRecord, 0, len(n.pipes)),
	}
	if n.kind.Central {
		v := 0.0
		if n.central != nil {
			v = n.central.Amount()
		}
		rec.CentralAmount = &v
	}
	for _, p := range n.sortedPipes() {
		pr := PipeRecord{Pos: p.ToArray()}
		if s := n.storages[p]; s != nil {
			pr.Amount = s.Amount()
		}
		rec.Pipes = append(rec.Pipes, pr)
	}
	return rec
}

// EncodeSet encodes networks in the given order.
func EncodeSet(networks []*Network) []Record {
	out := make([]Record, 0, len(networks))
	for _, n := range networks {
		out = append(out, Encode(n))
	}
	return out
}

// Decode builds a detached network from rec. The network is not registered.
func Decode(rec Record, kind Kind, world World) (*Network, error) {
	if rec.Kind != kind.Name {
		return nil, fmt.Errorf("%w: record kind %q, want %q", ErrBadRecord, rec.Kind, kind.Name)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q: %v", ErrBadRecord, rec.ID, err)
	}
	if len(rec.Pipes) == 0 {
		return nil, fmt.Errorf("%w: network %s has no pipes", ErrBadRecord, rec.ID)
	}
	n := NewNetwork(id, kind, world)
	for _, pr := range rec.Pipes {
		p := PosFromArray(pr.Pos)
		if n.Has(p) {
			return nil, fmt.Errorf("%w: network %s lists %v twice", ErrBadRecord, rec.ID, pr.Pos)
		}
		n.insert(p)
		if !kind.Central {
			s := kind.NewStorage()
			s.SetAmount(pr.Amount)
			n.storages[p] = s
		}
	}
	if kind.Central && rec.CentralAmount != nil {
		n.central.SetAmount(*rec.CentralAmount)
	}
	return n, nil
}

// Restore replaces the registry content with the decoded records. nextSeq
// continues the id sequence of the registry the records came from; it never
// moves the sequence backwards. On error the registry is left empty.
//
// Records whose pipes are split into several components are restored as one
// network per component so the connectivity invariant holds after load.
func (r *Registry) Restore(records []Record, nextSeq uint64) error {
	r.Clear()
	if nextSeq > r.nextSeq {
		r.nextSeq = nextSeq
	}

	var loaded []*Network
	for _, rec := range records {
		sh := r.shards[rec.Kind]
		if sh == nil {
			r.Clear()
			return fmt.Errorf("network %s: %w %q", rec.ID, ErrUnknownKind, rec.Kind)
		}
		n, err := Decode(rec, sh.kind, r.world)
		if err != nil {
			r.Clear()
			return err
		}
		if r.Network(n.id) != nil {
			r.Clear()
			return fmt.Errorf("%w: duplicate network id %s", ErrBadRecord, rec.ID)
		}
		for p := range n.pipes {
			if owner := sh.owners[p]; owner != nil {
				r.Clear()
				return fmt.Errorf("%w: pipe %v owned by %s and %s", ErrBadRecord, p.ToArray(), owner.id, n.id)
			}
		}
		n.owners = sh.owners
		for p := range n.pipes {
			sh.owners[p] = n
		}
		sh.networks[n.id] = n
		loaded = append(loaded, n)
	}

	for _, n := range loaded {
		comps := splitComponents(n.pipes, nil)
		for _, c := range comps[1:] {
			m := r.create(n.kind.Name)
			m.MovePipesFrom(n, c.pipes)
			r.log.Printf("restore: network %s was not contiguous, split off %s (%d pipes)", n.id, m.id, len(c.pipes))
		}
		n.OnConnectedBlocksChanged()
	}
	r.MarkAllDirty()
	return nil
}
