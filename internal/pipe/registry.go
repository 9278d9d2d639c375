package pipe

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Registry owns every live network of a world, sharded per resource kind.
// Create one when a world loads and Clear it when the world unloads.
//
// The registry is driven from the single simulation goroutine and does no
// locking of its own.
type Registry struct {
	world World
	log   *log.Logger
	hooks Hooks

	kinds  []Kind
	shards map[string]*shard

	namespace uuid.UUID
	nextSeq   uint64

	dirty   map[uuid.UUID]*Network
	removed map[uuid.UUID]Removed
}

type shard struct {
	kind     Kind
	networks map[uuid.UUID]*Network
	owners   map[Pos]*Network
}

// Removed identifies a destroyed network for sync consumers.
type Removed struct {
	ID   uuid.UUID
	Kind string
}

// Hooks observe registry lifecycle changes. Nil fields are skipped.
type Hooks struct {
	Created   func(n *Network)
	Destroyed func(kind string, id uuid.UUID)
	Merged    func(kind string, absorbed int)
	Split     func(kind string, parts int)
}

type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithNamespace derives network ids from name, so two registries built for
// the same world hand out the same id sequence.
func WithNamespace(name string) Option {
	return func(r *Registry) {
		r.namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pipenet:"+name))
	}
}

func NewRegistry(world World, kinds []Kind, opts ...Option) *Registry {
	if world == nil {
		world = emptyWorld{}
	}
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	r := &Registry{
		world:     world,
		log:       log.New(io.Discard, "", 0),
		shards:    make(map[string]*shard, len(kinds)),
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("pipenet:default")),
		dirty:     make(map[uuid.UUID]*Network),
		removed:   make(map[uuid.UUID]Removed),
	}
	for _, k := range kinds {
		if k.Name == "" {
			continue
		}
		if _, dup := r.shards[k.Name]; dup {
			continue
		}
		r.kinds = append(r.kinds, k)
		r.shards[k.Name] = &shard{
			kind:     k,
			networks: make(map[uuid.UUID]*Network),
			owners:   make(map[Pos]*Network),
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) World() World { return r.world }

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	return append([]Kind(nil), r.kinds...)
}

func (r *Registry) Kind(name string) (Kind, bool) {
	sh := r.shards[name]
	if sh == nil {
		return Kind{}, false
	}
	return sh.kind, true
}

// Network finds a live network by id in any shard.
func (r *Registry) Network(id uuid.UUID) *Network {
	for _, k := range r.kinds {
		if n := r.shards[k.Name].networks[id]; n != nil {
			return n
		}
	}
	return nil
}

// NetworkAt returns the network owning the pipe at pos.
func (r *Registry) NetworkAt(kind string, pos Pos) *Network {
	sh := r.shards[kind]
	if sh == nil {
		return nil
	}
	return sh.owners[pos]
}

// Networks returns the live networks of one kind ordered by id.
func (r *Registry) Networks(kind string) []*Network {
	sh := r.shards[kind]
	if sh == nil {
		return nil
	}
	return sortedNetworks(sh.networks)
}

// All returns every live network, kinds in registration order.
func (r *Registry) All() []*Network {
	var out []*Network
	for _, k := range r.kinds {
		out = append(out, sortedNetworks(r.shards[k.Name].networks)...)
	}
	return out
}

func (r *Registry) Count(kind string) int {
	sh := r.shards[kind]
	if sh == nil {
		return 0
	}
	return len(sh.networks)
}

// PipeCount returns the number of tracked pipes of one kind.
func (r *Registry) PipeCount(kind string) int {
	sh := r.shards[kind]
	if sh == nil {
		return 0
	}
	return len(sh.owners)
}

// TickAll ticks every live network once.
func (r *Registry) TickAll() {
	for _, n := range r.All() {
		n.Tick()
	}
}

// MarkDirty queues n for the next sync drain.
func (r *Registry) MarkDirty(n *Network) {
	if n == nil {
		return
	}
	sh := r.shards[n.kind.Name]
	if sh == nil || sh.networks[n.id] != n {
		return
	}
	r.dirty[n.id] = n
}

func (r *Registry) MarkAllDirty() {
	for _, n := range r.All() {
		r.dirty[n.id] = n
	}
}

// DrainDirty returns the networks changed since the last drain and the ids
// destroyed since then, both ordered by id, and resets both sets.
func (r *Registry) DrainDirty() ([]*Network, []Removed) {
	dirty := sortedNetworks(r.dirty)
	removed := make([]Removed, 0, len(r.removed))
	for _, rm := range r.removed {
		removed = append(removed, rm)
	}
	sort.Slice(removed, func(i, j int) bool { return idLess(removed[i].ID, removed[j].ID) })
	r.dirty = make(map[uuid.UUID]*Network)
	r.removed = make(map[uuid.UUID]Removed)
	if len(removed) == 0 {
		removed = nil
	}
	return dirty, removed
}

// Clear drops every network. The id sequence keeps counting so ids handed
// out before the clear are never reused.
func (r *Registry) Clear() {
	for _, k := range r.kinds {
		sh := r.shards[k.Name]
		sh.networks = make(map[uuid.UUID]*Network)
		sh.owners = make(map[Pos]*Network)
	}
	r.dirty = make(map[uuid.UUID]*Network)
	r.removed = make(map[uuid.UUID]Removed)
}

// NextSeq is the sequence number the next created network id derives from.
func (r *Registry) NextSeq() uint64 { return r.nextSeq }

func (r *Registry) create(kind string) *Network {
	sh := r.shards[kind]
	if sh == nil {
		return nil
	}
	n := NewNetwork(r.newID(), sh.kind, r.world)
	n.owners = sh.owners
	sh.networks[n.id] = n
	r.dirty[n.id] = n
	if r.hooks.Created != nil {
		r.hooks.Created(n)
	}
	return n
}

func (r *Registry) destroy(n *Network) {
	sh := r.shards[n.kind.Name]
	if sh == nil || sh.networks[n.id] != n {
		return
	}
	for p := range n.pipes {
		n.erase(p)
	}
	delete(sh.networks, n.id)
	delete(r.dirty, n.id)
	r.removed[n.id] = Removed{ID: n.id, Kind: n.kind.Name}
	if r.hooks.Destroyed != nil {
		r.hooks.Destroyed(n.kind.Name, n.id)
	}
}

func (r *Registry) newID() uuid.UUID {
	for {
		seq := r.nextSeq
		r.nextSeq++
		id := uuid.NewSHA1(r.namespace, []byte(strconv.FormatUint(seq, 10)))
		if r.Network(id) == nil {
			return id
		}
	}
}

// Digest hashes the full network state (membership, storages, connectivity)
// in canonical order. Equal digests mean equal observable state.
func (r *Registry) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		h.Write(tmp[:])
	}
	writePos := func(p Pos) {
		writeInt(int64(p.X))
		writeInt(int64(p.Y))
		writeInt(int64(p.Z))
	}

	for _, k := range r.kinds {
		h.Write([]byte(k.Name))
		nets := sortedNetworks(r.shards[k.Name].networks)
		writeInt(int64(len(nets)))
		for _, n := range nets {
			h.Write(n.id[:])
			pipes := n.sortedPipes()
			writeInt(int64(len(pipes)))
			for _, p := range pipes {
				writePos(p)
				if s := n.storages[p]; s != nil {
					writeFloat(s.Amount())
				}
			}
			if n.central != nil {
				writeFloat(n.central.Amount())
			}
			conn := n.ConnectedBlocks()
			writeInt(int64(len(conn)))
			for _, c := range conn {
				writePos(c)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedNetworks(m map[uuid.UUID]*Network) []*Network {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Network, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].id, out[j].id) })
	return out
}

func idLess(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 }
