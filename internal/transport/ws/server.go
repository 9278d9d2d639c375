package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/O7410/Industria/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

// World is the part of the simulation the sync server talks to.
type World interface {
	ID() string
	CurrentTick() uint64
	TickRateHz() int
	KindInfo() []protocol.KindInfo
	RequestFullSync(ctx context.Context) (protocol.SyncMsg, uint64, error)
	ValidateEdit(e protocol.Edit) error
	Submit(e protocol.Edit) bool
}

// Metrics receives subscriber counts and drops. May be nil.
type Metrics interface {
	SetSubscribers(n int)
	IncDropped()
}

// ErrorCoder maps an edit validation error to a protocol code.
type ErrorCoder func(error) string

// Server serves /v1/sync: SUBSCRIBE, then WELCOME and a full SYNC, then one
// delta SYNC per changed tick. Clients may send EDIT batches at any time.
type Server struct {
	world   World
	log     *log.Logger
	metrics Metrics
	codeOf  ErrorCoder

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*client
}

type client struct {
	id     uint64
	kinds  map[string]bool
	syncs  chan protocol.SyncMsg
	ctrl   chan []byte
	cancel context.CancelFunc
}

func NewServer(w World, logger *log.Logger, metrics Metrics, codeOf ErrorCoder) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if codeOf == nil {
		codeOf = func(error) string { return protocol.ErrBadRequest }
	}
	return &Server{
		world:   w,
		log:     logger,
		metrics: metrics,
		codeOf:  codeOf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: make(map[uint64]*client),
	}
}

// BroadcastSync fans msg out to every subscriber. It never blocks: a client
// whose queue is full is disconnected and must resubscribe.
func (s *Server) BroadcastSync(msg protocol.SyncMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		select {
		case c.syncs <- msg:
		default:
			delete(s.clients, id)
			c.cancel()
			if s.metrics != nil {
				s.metrics.IncDropped()
			}
			s.log.Printf("sync client %d too slow, dropped", id)
		}
	}
	s.reportLocked()
}

// Subscribers returns the number of registered clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	s.reportLocked()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		s.reportLocked()
	}
}

func (s *Server) reportLocked() {
	if s.metrics != nil {
		s.metrics.SetSubscribers(len(s.clients))
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub, ok := s.readSubscribe(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &client{
			id:     s.nextID.Add(1),
			syncs:  make(chan protocol.SyncMsg, 256),
			ctrl:   make(chan []byte, 16),
			cancel: cancel,
		}
		if len(sub.Kinds) > 0 {
			c.kinds = make(map[string]bool, len(sub.Kinds))
			for _, k := range sub.Kinds {
				c.kinds[k] = true
			}
		}

		// Register before the full sync so no delta falls between them; deltas
		// already folded into the full sync are skipped by tick.
		s.register(c)
		defer s.unregister(c)

		full, nextTick, err := s.world.RequestFullSync(ctx)
		if err != nil {
			return
		}
		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			WorldID:         s.world.ID(),
			Tick:            nextTick,
			TickRateHz:      s.world.TickRateHz(),
			Kinds:           s.world.KindInfo(),
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		if err := writeJSON(conn, full.Filter(c.kinds)); err != nil {
			return
		}

		writeErr := make(chan error, 1)
		go s.writeLoop(ctx, conn, c, nextTick, writeErr)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			s.handleMessage(c, msg)
		}

		cancel()
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) readSubscribe(conn *websocket.Conn) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
		return sub, false
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return sub, false
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
		return sub, false
	}
	return sub, true
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client, nextTick uint64, done chan<- error) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	fail := func(err error) {
		c.cancel()
		// Unblocks the reader.
		_ = conn.Close()
		done <- err
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			fail(ctx.Err())
			return
		case b := <-c.ctrl:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				fail(err)
				return
			}
		case msg := <-c.syncs:
			if msg.Tick < nextTick {
				continue
			}
			msg = msg.Filter(c.kinds)
			if msg.Empty() {
				continue
			}
			if err := writeJSON(conn, msg); err != nil {
				fail(err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				fail(err)
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *client, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.ack(c, protocol.AckMsg{Accepted: false, Code: protocol.ErrProtoBadRequest, Message: "bad json"})
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.ack(c, protocol.AckMsg{Accepted: false, Code: protocol.ErrProtoBadRequest, Message: "bad protocol_version"})
		return
	}
	if base.Type != protocol.TypeEdit {
		return
	}
	var em protocol.EditMsg
	if err := json.Unmarshal(msg, &em); err != nil {
		s.ack(c, protocol.AckMsg{Accepted: false, Code: protocol.ErrProtoBadRequest, Message: "bad edit"})
		return
	}
	s.ack(c, s.submitEdits(em))
}

// submitEdits validates the whole batch first, then queues it in order.
func (s *Server) submitEdits(em protocol.EditMsg) protocol.AckMsg {
	ack := protocol.AckMsg{AckFor: em.ReqID}
	if len(em.Edits) == 0 {
		ack.Code = protocol.ErrBadRequest
		ack.Message = "no edits"
		return ack
	}
	for i, e := range em.Edits {
		if err := s.world.ValidateEdit(e); err != nil {
			ack.Code = s.codeOf(err)
			ack.Message = fmt.Sprintf("edit %d: %v", i, err)
			return ack
		}
	}
	for i, e := range em.Edits {
		if !s.world.Submit(e) {
			ack.Code = protocol.ErrWorldBusy
			ack.Message = fmt.Sprintf("inbox full after %d of %d edits", i, len(em.Edits))
			return ack
		}
	}
	ack.Accepted = true
	return ack
}

func (s *Server) ack(c *client, ack protocol.AckMsg) {
	ack.Type = protocol.TypeAck
	ack.ProtocolVersion = protocol.Version
	ack.WorldID = s.world.ID()
	ack.ServerTick = s.world.CurrentTick()
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case c.ctrl <- b:
	default:
		// Acks are best effort.
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
