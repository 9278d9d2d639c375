package world

import (
	"context"

	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/protocol"
)

type fullSyncReq struct {
	Resp chan fullSyncResp
}

type fullSyncResp struct {
	msg      protocol.SyncMsg
	nextTick uint64
}

// RequestFullSync asks the world loop for a SYNC carrying every live network.
// It is served between ticks. nextTick is the first tick whose delta SYNC is
// not already reflected in msg.
func (w *World) RequestFullSync(ctx context.Context) (msg protocol.SyncMsg, nextTick uint64, err error) {
	req := fullSyncReq{Resp: make(chan fullSyncResp, 1)}
	select {
	case w.fullSync <- req:
	case <-ctx.Done():
		return protocol.SyncMsg{}, 0, ctx.Err()
	}
	select {
	case r := <-req.Resp:
		return r.msg, r.nextTick, nil
	case <-ctx.Done():
		return protocol.SyncMsg{}, 0, ctx.Err()
	}
}

func (w *World) handleFullSync(req fullSyncReq) {
	req.Resp <- fullSyncResp{msg: w.FullSync(), nextTick: w.tick.Load()}
}

// FullSync builds a full SYNC from the current state. World goroutine only.
func (w *World) FullSync() protocol.SyncMsg {
	tick := w.tick.Load()
	if tick > 0 {
		tick--
	}
	msg := w.syncMsg(tick)
	msg.Full = true
	msg.Networks = pipe.EncodeSet(w.reg.All())
	return msg
}

func (w *World) syncMsg(tick uint64) protocol.SyncMsg {
	return protocol.SyncMsg{
		Type:            protocol.TypeSync,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            tick,
		Networks:        []pipe.Record{},
	}
}

// publishSync drains the registry dirty set into one SYNC. Every
// SyncEveryTicks ticks all networks are resent so amounts that changed
// through ticking alone reach clients.
func (w *World) publishSync(nowTick uint64) {
	if every := uint64(w.cfg.SyncEveryTicks); every > 0 && nowTick%every == 0 {
		w.reg.MarkAllDirty()
	}
	dirty, removed := w.reg.DrainDirty()
	if w.broadcaster == nil {
		return
	}
	msg := w.syncMsg(nowTick)
	msg.Networks = pipe.EncodeSet(dirty)
	for _, rm := range removed {
		msg.Removed = append(msg.Removed, protocol.RemovedRef{ID: rm.ID.String(), Kind: rm.Kind})
	}
	if msg.Empty() {
		return
	}
	w.broadcaster.BroadcastSync(msg)
}
