package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/O7410/Industria/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/sync", "sync ws url")
		kinds = flag.String("kinds", "", "comma separated kinds to subscribe to (empty: all)")
		kind  = flag.String("kind", "heat", "kind of the pipe line the bot lays")
		every = flag.Duration("every", 2*time.Second, "interval between edits")
		y     = flag.Int("y", 0, "row the line is laid on")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}
	for _, k := range strings.Split(*kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			sub.Kinds = append(sub.Kinds, k)
		}
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	go layLine(conn, logger, *kind, *y, *every)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME world=%s tick=%d tick_rate=%d kinds=%d", w.WorldID, w.Tick, w.TickRateHz, len(w.Kinds))

		case protocol.TypeSync:
			var s protocol.SyncMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			logger.Print(describeSync(s))

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				logger.Printf("ACK %s rejected code=%s msg=%s", a.AckFor, a.Code, a.Message)
			}
		}
	}
}

// layLine places one pipe per interval along +x, then removes the middle one
// every tenth step so the server has splits to report.
func layLine(conn *websocket.Conn, logger *log.Logger, kind string, y int, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for n := 0; ; n++ {
		<-t.C
		edits := []protocol.Edit{{Op: protocol.OpPlacePipe, Kind: kind, Pos: [3]int{n, y, 0}}}
		if n > 0 && n%10 == 0 {
			edits = append(edits, protocol.Edit{Op: protocol.OpRemovePipe, Kind: kind, Pos: [3]int{n / 2, y, 0}})
		}
		msg := protocol.EditMsg{
			Type:            protocol.TypeEdit,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("bot_%d", n),
			Edits:           edits,
		}
		if err := conn.WriteJSON(msg); err != nil {
			logger.Printf("send EDIT: %v", err)
			return
		}
	}
}

func describeSync(s protocol.SyncMsg) string {
	pipes := 0
	for _, n := range s.Networks {
		pipes += len(n.Pipes)
	}
	tag := "delta"
	if s.Full {
		tag = "full"
	}
	return fmt.Sprintf("SYNC %s tick=%d networks=%d pipes=%d removed=%d", tag, s.Tick, len(s.Networks), pipes, len(s.Removed))
}
