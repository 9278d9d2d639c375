package world

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/O7410/Industria/internal/protocol"
)

var tracer = otel.Tracer("github.com/O7410/Industria/internal/sim/world")

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []protocol.Edit
	var pendingSnapshots []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case e := <-w.inbox:
			pendingEdits = append(pendingEdits, e)
		case req := <-w.snapReq:
			pendingSnapshots = append(pendingSnapshots, req)
		case req := <-w.fullSync:
			w.handleFullSync(req)
		case <-ticker.C:
			w.step(ctx, pendingEdits)
			w.handleSnapshotRequests(pendingSnapshots)
			pendingEdits = pendingEdits[:0]
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(edits []protocol.Edit) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(context.Background(), edits)
	return tick, digest
}

// step applies edits in arrival order, ticks every network, then hands the
// results to the tick log, sync broadcaster and snapshot sink.
func (w *World) step(ctx context.Context, edits []protocol.Edit) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	_, span := tracer.Start(ctx, "world.step", trace.WithAttributes(
		attribute.String("world.id", w.cfg.ID),
		attribute.Int64("world.tick", int64(nowTick)),
		attribute.Int("world.edits", len(edits)),
	))
	defer span.End()

	recorded := make([]protocol.Edit, 0, len(edits))
	rejected := 0
	for _, e := range edits {
		recorded = append(recorded, e)
		outcome, err := w.applyEdit(e)
		if err != nil {
			rejected++
			w.log.Printf("tick %d: reject %s %s at %v: %v", nowTick, e.Op, e.Kind, e.Pos, err)
		}
		if w.recorder != nil {
			w.recorder.ObserveEdit(e.Op, e.Kind, outcome)
		}
	}

	w.reg.TickAll()

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Edits: recorded, Digest: digest})
	}

	w.publishSync(nowTick)

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
				w.log.Printf("tick %d: snapshot sink full, dropped", nowTick)
			}
		}
	}

	d := time.Since(stepStart)
	if w.recorder != nil {
		w.recorder.ObserveStep(d, w.reg)
	}
	span.SetAttributes(attribute.Int("world.edits_rejected", rejected))
	w.tick.Add(1)
	w.storeMetrics(nowTick, d)
	return digest
}
