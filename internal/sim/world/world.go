package world

import (
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/grid"
	"github.com/O7410/Industria/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	SyncEveryTicks     int
	Kinds              map[string]tuning.KindTuning
}

// ConfigFromTuning builds a world config from loaded tuning.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		SyncEveryTicks:     t.SyncEveryTicks,
		Kinds:              t.Kinds,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.SyncEveryTicks < 0 {
		c.SyncEveryTicks = 0
	}
	if len(c.Kinds) == 0 {
		c.Kinds = tuning.Defaults().Kinds
	}
	kinds := make(map[string]tuning.KindTuning, len(c.Kinds))
	for name, k := range c.Kinds {
		if k.TransferRate == 0 {
			k.TransferRate = pipe.DefaultTransferRate
		}
		kinds[name] = k
	}
	c.Kinds = kinds
}

func (c WorldConfig) pipeKinds() []pipe.Kind {
	return tuning.Tuning{Kinds: c.Kinds}.PipeKinds()
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	Edits  []protocol.Edit `json:"edits,omitempty"`
	Digest string          `json:"digest"`
}

// Broadcaster receives one SYNC message per tick that changed anything. It is
// called on the world goroutine and must not block.
type Broadcaster interface {
	BroadcastSync(msg protocol.SyncMsg)
}

// Recorder observes registry lifecycle, edits and steps. Implemented in
// internal/observability.
type Recorder interface {
	Hooks() pipe.Hooks
	ObserveEdit(op, kind string, outcome string)
	ObserveStep(d time.Duration, reg *pipe.Registry)
}

// World is a single-threaded authoritative simulation of one grid and its pipe
// networks. All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64

	grid   *grid.Grid
	reg    *pipe.Registry
	editor *pipe.Editor

	inbox    chan protocol.Edit
	snapReq  chan snapshotReq
	fullSync chan fullSyncReq
	stop     chan struct{}

	// Optional collaborators (may be nil).
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	broadcaster  Broadcaster
	recorder     Recorder

	metrics atomic.Value
}

type Option func(*World)

func WithLogger(l *log.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(w *World) { w.recorder = r }
}

func New(cfg WorldConfig, opts ...Option) (*World, error) {
	cfg.applyDefaults()
	w := &World{
		cfg:      cfg,
		log:      log.New(io.Discard, "", 0),
		grid:     grid.New(),
		inbox:    make(chan protocol.Edit, 4096),
		snapReq:  make(chan snapshotReq, 8),
		fullSync: make(chan fullSyncReq, 64),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if err := (tuning.Tuning{TickRateHz: cfg.TickRateHz, Kinds: cfg.Kinds}).Validate(); err != nil {
		return nil, err
	}

	regOpts := []pipe.Option{
		pipe.WithLogger(w.log),
		pipe.WithNamespace(cfg.ID),
	}
	if w.recorder != nil {
		regOpts = append(regOpts, pipe.WithHooks(w.recorder.Hooks()))
	}
	w.reg = pipe.NewRegistry(w.grid, cfg.pipeKinds(), regOpts...)
	w.editor = pipe.NewEditor(w.reg)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetBroadcaster(b Broadcaster)                  { w.broadcaster = b }

// Inbox accepts edits; they are applied at the start of the next tick in
// arrival order.
func (w *World) Inbox() chan<- protocol.Edit { return w.inbox }

// Submit queues e without blocking. It reports false when the inbox is full.
func (w *World) Submit(e protocol.Edit) bool {
	select {
	case w.inbox <- e:
		return true
	default:
		return false
	}
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Config() WorldConfig { return w.cfg }

// Registry exposes the network registry. Only the world goroutine, or callers
// holding a stopped world, may use it.
func (w *World) Registry() *pipe.Registry { return w.reg }

// Grid exposes the host grid under the same rule as Registry.
func (w *World) Grid() *grid.Grid { return w.grid }

// KindInfo describes the served kinds for WELCOME messages.
func (w *World) KindInfo() []protocol.KindInfo {
	kinds := w.reg.Kinds()
	out := make([]protocol.KindInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, protocol.KindInfo{
			Name:           k.Name,
			TransferRate:   w.cfg.Kinds[k.Name].TransferRate,
			CentralStorage: k.Central,
		})
	}
	return out
}
