package pipe

import "math"

// flow is one computed exchange, always recorded with a positive amount.
type flow struct {
	from, to Storage
	amount   float64
}

// flowBatch collects the exchanges of one tick. Before applying, every
// sender's total outflow is scaled down to what it holds and every receiver's
// total inflow to its free capacity, so each flow is debited and credited the
// same amount.
type flowBatch struct {
	flows []flow
	out   map[Storage]float64
	in    map[Storage]float64
	order []Storage
}

func newFlowBatch(size int) *flowBatch {
	return &flowBatch{
		flows: make([]flow, 0, size),
		out:   make(map[Storage]float64, size),
		in:    make(map[Storage]float64, size),
		order: make([]Storage, 0, size),
	}
}

func (b *flowBatch) touch(s Storage) {
	if _, ok := b.out[s]; ok {
		return
	}
	b.out[s] = 0
	b.in[s] = 0
	b.order = append(b.order, s)
}

// add records t moving from one storage to the other; a negative t moves the
// other way.
func (b *flowBatch) add(from, to Storage, t float64) {
	if t < 0 {
		from, to, t = to, from, -t
	}
	if t == 0 || math.IsNaN(t) {
		return
	}
	b.touch(from)
	b.touch(to)
	b.flows = append(b.flows, flow{from: from, to: to, amount: t})
	b.out[from] += t
	b.in[to] += t
}

func (b *flowBatch) outScale(s Storage) float64 {
	have, want := s.Amount(), b.out[s]
	if want <= have {
		return 1
	}
	if have <= 0 {
		return 0
	}
	return have / want
}

func (b *flowBatch) inScale(s Storage) float64 {
	if !Bounded(s) {
		return 1
	}
	room, want := s.Capacity()-s.Amount(), b.in[s]
	if want <= room {
		return 1
	}
	if room <= 0 {
		return 0
	}
	return room / want
}

func (b *flowBatch) apply() {
	outScale := make(map[Storage]float64, len(b.order))
	inScale := make(map[Storage]float64, len(b.order))
	for _, s := range b.order {
		outScale[s] = b.outScale(s)
		inScale[s] = b.inScale(s)
	}
	delta := make(map[Storage]float64, len(b.order))
	for _, f := range b.flows {
		v := f.amount * outScale[f.from] * inScale[f.to]
		delta[f.from] -= v
		delta[f.to] += v
	}
	for _, s := range b.order {
		v := s.Amount() + delta[s]
		if v < 0 {
			v = 0
		}
		s.SetAmount(v)
	}
}

// Tick moves resource for one simulation step. All exchanges are computed from
// the amounts at the start of the tick and applied together, then passive loss
// runs on the network's own storages. Exchanges never create or destroy
// resource: a storage cannot give more than it holds nor take more than fits.
func (n *Network) Tick() {
	if len(n.pipes) == 0 {
		return
	}
	law := n.kind.law()
	order := n.sortedPipes()
	batch := newFlowBatch(len(order) + len(n.connected))

	// Pipe to pipe. A central storage exchanges with itself only.
	if !n.kind.Central {
		for _, p := range order {
			a := n.storageAt(p)
			for _, d := range forwardDirs {
				q := p.Offset(d)
				if !n.Has(q) {
					continue
				}
				b := n.storageAt(q)
				batch.add(a, b, law.Transfer(a.Amount(), b.Amount()))
			}
		}
	}

	// Pipe to terminal.
	if len(n.connected) > 0 {
		for _, p := range order {
			for _, d := range Directions {
				q := p.Offset(d)
				if !n.IsConnected(q) {
					continue
				}
				ext, ok := n.world.LookupStorage(n.kind.Name, q, d.Opposite())
				if !ok || ext == nil || !ext.SupportsInsertion() {
					continue
				}
				a := n.storageAt(p)
				batch.add(a, ext, law.Transfer(a.Amount(), ext.Amount()))
			}
		}
	}

	batch.apply()

	if n.kind.Loss == nil {
		return
	}
	if n.kind.Central {
		n.kind.Loss.Dissipate(n.storageAt(order[0]))
		return
	}
	for _, p := range order {
		n.kind.Loss.Dissipate(n.storageAt(p))
	}
}
