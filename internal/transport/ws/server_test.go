package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/tuning"
	"github.com/O7410/Industria/internal/sim/world"
)

type countingMetrics struct {
	subs    chan int
	dropped int
}

func (m *countingMetrics) SetSubscribers(n int) {
	select {
	case m.subs <- n:
	default:
	}
}
func (m *countingMetrics) IncDropped() { m.dropped++ }

func startWorld(t *testing.T) (*world.World, *Server, string) {
	t.Helper()
	cfg := world.ConfigFromTuning("ws-test", tuning.Defaults())
	cfg.TickRateHz = 100
	cfg.SyncEveryTicks = 0
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	srv := NewServer(w, nil, nil, world.ErrorCode)
	w.SetBroadcaster(srv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})
	return w, srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string, kinds ...string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Kinds: kinds}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

// next reads until a message of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		if err := json.Unmarshal(b, v); err != nil {
			t.Fatalf("unmarshal %s: %v", typ, err)
		}
		return
	}
}

// nextSyncWith reads SYNC messages until one lists a network containing pos.
func nextSyncWith(t *testing.T, conn *websocket.Conn, pos [3]int) (protocol.SyncMsg, pipe.Record) {
	t.Helper()
	for {
		var msg protocol.SyncMsg
		next(t, conn, protocol.TypeSync, &msg)
		for _, rec := range msg.Networks {
			for _, p := range rec.Pipes {
				if p.Pos == pos {
					return msg, rec
				}
			}
		}
	}
}

func sendEdits(t *testing.T, conn *websocket.Conn, reqID string, edits ...protocol.Edit) protocol.AckMsg {
	t.Helper()
	em := protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version, ReqID: reqID, Edits: edits}
	if err := conn.WriteJSON(em); err != nil {
		t.Fatalf("edit: %v", err)
	}
	var ack protocol.AckMsg
	next(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != reqID {
		t.Fatalf("ack for %q, want %q", ack.AckFor, reqID)
	}
	return ack
}

func TestSync_WelcomeFullSyncThenDeltas(t *testing.T) {
	_, _, url := startWorld(t)
	conn := dial(t, url)

	var welcome protocol.WelcomeMsg
	next(t, conn, protocol.TypeWelcome, &welcome)
	if welcome.WorldID != "ws-test" || welcome.TickRateHz != 100 || len(welcome.Kinds) != 4 {
		t.Fatalf("welcome=%+v", welcome)
	}
	var full protocol.SyncMsg
	next(t, conn, protocol.TypeSync, &full)
	if !full.Full || len(full.Networks) != 0 {
		t.Fatalf("full sync=%+v", full)
	}

	ack := sendEdits(t, conn, "r1",
		protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindHeat, Pos: [3]int{0, 0, 0}},
		protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindHeat, Pos: [3]int{1, 0, 0}},
	)
	if !ack.Accepted || ack.Code != "" || ack.WorldID != "ws-test" {
		t.Fatalf("ack=%+v", ack)
	}

	msg, rec := nextSyncWith(t, conn, [3]int{1, 0, 0})
	if msg.Full || rec.Kind != pipe.KindHeat || len(rec.Pipes) != 2 {
		t.Fatalf("delta=%+v rec=%+v", msg, rec)
	}
}

func TestSync_LateSubscriberGetsState(t *testing.T) {
	_, _, url := startWorld(t)
	a := dial(t, url)
	var full protocol.SyncMsg
	next(t, a, protocol.TypeSync, &full)
	if ack := sendEdits(t, a, "r1", protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindFluid, Pos: [3]int{5, 5, 5}}); !ack.Accepted {
		t.Fatalf("ack=%+v", ack)
	}
	nextSyncWith(t, a, [3]int{5, 5, 5})

	b := dial(t, url)
	var late protocol.SyncMsg
	next(t, b, protocol.TypeSync, &late)
	if !late.Full || len(late.Networks) != 1 || late.Networks[0].Kind != pipe.KindFluid {
		t.Fatalf("late full sync=%+v", late)
	}
}

func TestSync_KindFilter(t *testing.T) {
	_, _, url := startWorld(t)
	conn := dial(t, url, pipe.KindFluid)
	var full protocol.SyncMsg
	next(t, conn, protocol.TypeSync, &full)

	sendEdits(t, conn, "heat", protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindHeat, Pos: [3]int{0, 0, 0}})
	sendEdits(t, conn, "fluid", protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindFluid, Pos: [3]int{0, 9, 0}})

	msg, _ := nextSyncWith(t, conn, [3]int{0, 9, 0})
	for _, rec := range msg.Networks {
		if rec.Kind != pipe.KindFluid {
			t.Fatalf("filtered subscriber received %s network", rec.Kind)
		}
	}
}

func TestEdit_RejectedBatchIsNotQueued(t *testing.T) {
	w, _, url := startWorld(t)
	conn := dial(t, url)
	var full protocol.SyncMsg
	next(t, conn, protocol.TypeSync, &full)

	ack := sendEdits(t, conn, "bad",
		protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindHeat, Pos: [3]int{0, 0, 0}},
		protocol.Edit{Op: protocol.OpPlacePipe, Kind: "plasma", Pos: [3]int{1, 0, 0}},
	)
	if ack.Accepted || ack.Code != protocol.ErrUnknownKind {
		t.Fatalf("ack=%+v", ack)
	}

	ack = sendEdits(t, conn, "empty")
	if ack.Accepted || ack.Code != protocol.ErrBadRequest {
		t.Fatalf("empty batch ack=%+v", ack)
	}

	// A later valid edit arrives alone: the rejected batch left nothing behind.
	sendEdits(t, conn, "ok", protocol.Edit{Op: protocol.OpPlacePipe, Kind: pipe.KindFluid, Pos: [3]int{3, 3, 3}})
	nextSyncWith(t, conn, [3]int{3, 3, 3})
	if got := w.Metrics().Networks[pipe.KindHeat]; got != 0 {
		t.Fatalf("heat networks=%d after rejected batch", got)
	}
}

func TestHandshake_RequiresSubscribe(t *testing.T) {
	_, _, url := startWorld(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	m := &countingMetrics{subs: make(chan int, 8)}
	s := NewServer(nil, nil, m, nil)
	cancelled := false
	c := &client{id: 1, syncs: make(chan protocol.SyncMsg, 1), cancel: func() { cancelled = true }}
	s.register(c)

	s.BroadcastSync(protocol.SyncMsg{Tick: 1})
	if s.Subscribers() != 1 || cancelled {
		t.Fatalf("client dropped with room in its queue")
	}
	s.BroadcastSync(protocol.SyncMsg{Tick: 2})
	if s.Subscribers() != 0 || !cancelled || m.dropped != 1 {
		t.Fatalf("slow client kept: subs=%d cancelled=%v dropped=%d", s.Subscribers(), cancelled, m.dropped)
	}
}
