package pipe

import (
	"github.com/google/uuid"
)

// Network is one connected set of pipe cells of a single resource kind,
// together with the terminals attached to it and the storages it owns.
//
// A Network is not safe for concurrent use. Ticks and edits of one network
// must not interleave.
type Network struct {
	id    uuid.UUID
	kind  Kind
	world World

	// owners is the per-kind pipe ownership index shared with the registry.
	// It is nil for networks built outside a registry.
	owners map[Pos]*Network

	pipes     map[Pos]struct{}
	order     []Pos
	connected map[Pos]struct{}
	storages  map[Pos]Storage
	central   Storage

	sources map[Pos]map[Pos]int
}

// NewNetwork returns an empty network. A nil world behaves as a grid with no
// terminals.
func NewNetwork(id uuid.UUID, kind Kind, world World) *Network {
	if world == nil {
		world = emptyWorld{}
	}
	n := &Network{
		id:        id,
		kind:      kind,
		world:     world,
		pipes:     make(map[Pos]struct{}),
		connected: make(map[Pos]struct{}),
		storages:  make(map[Pos]Storage),
	}
	if kind.Central {
		n.central = kind.NewStorage()
	}
	return n
}

func (n *Network) ID() uuid.UUID { return n.id }
func (n *Network) Kind() Kind    { return n.kind }
func (n *Network) Len() int      { return len(n.pipes) }

// HasCentralStorage reports whether all pipes share one storage.
func (n *Network) HasCentralStorage() bool { return n.kind.Central }

func (n *Network) Has(pos Pos) bool {
	_, ok := n.pipes[pos]
	return ok
}

// Pipes returns the member positions in canonical order.
func (n *Network) Pipes() []Pos {
	return append([]Pos(nil), n.sortedPipes()...)
}

// ConnectedBlocks returns the attached terminal positions in canonical order.
func (n *Network) ConnectedBlocks() []Pos {
	return SortedPositions(n.connected)
}

func (n *Network) IsConnected(pos Pos) bool {
	_, ok := n.connected[pos]
	return ok
}

// CentralStorage returns the shared storage, or nil for per-pipe kinds.
func (n *Network) CentralStorage() Storage { return n.central }

// AddPipe inserts pos and refreshes connectivity. Adding a tracked position,
// or one owned by another network of the same kind, changes nothing.
func (n *Network) AddPipe(pos Pos) {
	if n.Has(pos) {
		return
	}
	if owner := n.owners[pos]; owner != nil && owner != n {
		return
	}
	n.insert(pos)
	if !n.kind.Central {
		if _, ok := n.storages[pos]; !ok {
			n.storages[pos] = n.kind.NewStorage()
		}
	}
	n.OnConnectedBlocksChanged()
}

// RemovePipe drops pos and its storage. Unknown positions are ignored.
func (n *Network) RemovePipe(pos Pos) {
	if !n.Has(pos) {
		return
	}
	n.erase(pos)
	delete(n.storages, pos)
	n.OnConnectedBlocksChanged()
}

// MovePipesFrom transfers the given members of src, with their storages, into
// n. Positions src does not own are skipped. For central kinds the moved share
// of src's central amount follows the moved pipe count.
func (n *Network) MovePipesFrom(src *Network, positions []Pos) {
	if src == nil || src == n || src.kind.Name != n.kind.Name {
		return
	}
	moved := make([]Pos, 0, len(positions))
	for _, p := range positions {
		if src.Has(p) && !n.Has(p) {
			moved = append(moved, p)
		}
	}
	if len(moved) == 0 {
		return
	}

	if n.kind.Central {
		n.takeCentralShare(src, len(moved))
	}
	for _, p := range moved {
		if s, ok := src.storages[p]; ok {
			n.storages[p] = s
			delete(src.storages, p)
		}
		src.erase(p)
		n.insert(p)
	}

	src.OnConnectedBlocksChanged()
	n.OnConnectedBlocksChanged()
}

func (n *Network) takeCentralShare(src *Network, count int) {
	if src.central == nil {
		return
	}
	if n.central == nil {
		n.central = n.kind.NewStorage()
	}
	share := src.central.Amount()
	if count < len(src.pipes) {
		share = share * float64(count) / float64(len(src.pipes))
	}
	src.central.SetAmount(src.central.Amount() - share)
	n.central.SetAmount(n.central.Amount() + share)
}

// Storage returns the storage of a member pipe, creating a zero storage for a
// member that lacks one. It reports false for positions outside the network.
func (n *Network) Storage(pos Pos) (Storage, bool) {
	if !n.Has(pos) {
		return nil, false
	}
	return n.storageAt(pos), true
}

func (n *Network) storageAt(pos Pos) Storage {
	if n.kind.Central {
		if n.central == nil {
			n.central = n.kind.NewStorage()
		}
		return n.central
	}
	s, ok := n.storages[pos]
	if !ok || s == nil {
		s = n.kind.NewStorage()
		n.storages[pos] = s
	}
	return s
}

// TotalAmount sums every storage owned by the network.
func (n *Network) TotalAmount() float64 {
	if n.kind.Central {
		if n.central == nil {
			return 0
		}
		return n.central.Amount()
	}
	var sum float64
	for _, p := range n.sortedPipes() {
		if s, ok := n.storages[p]; ok && s != nil {
			sum += s.Amount()
		}
	}
	return sum
}

// OnConnectedBlocksChanged recomputes the attached terminals and, for kinds
// that track them, the source distances.
func (n *Network) OnConnectedBlocksChanged() {
	connected := make(map[Pos]struct{})
	for _, p := range n.sortedPipes() {
		for _, d := range Directions {
			q := p.Offset(d)
			if n.Has(q) || n.world.IsPipe(n.kind.Name, q) {
				continue
			}
			s, ok := n.world.LookupStorage(n.kind.Name, q, d.Opposite())
			if !ok || s == nil {
				continue
			}
			if s.SupportsInsertion() || s.SupportsExtraction() {
				connected[q] = struct{}{}
			}
		}
	}
	n.connected = connected

	n.sources = nil
	if n.kind.TrackDistances {
		n.computeSourceDistances()
	}
}

func (n *Network) insert(pos Pos) {
	n.pipes[pos] = struct{}{}
	n.order = nil
	if n.owners != nil {
		n.owners[pos] = n
	}
}

func (n *Network) erase(pos Pos) {
	delete(n.pipes, pos)
	n.order = nil
	if n.owners != nil && n.owners[pos] == n {
		delete(n.owners, pos)
	}
}

func (n *Network) sortedPipes() []Pos {
	if n.order == nil && len(n.pipes) > 0 {
		n.order = SortedPositions(n.pipes)
	}
	return n.order
}
