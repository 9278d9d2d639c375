package protocol

import "github.com/O7410/Industria/internal/pipe"

// SUBSCRIBE (client -> server). An empty Kinds list subscribes to every kind.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kinds           []string `json:"kinds,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	WorldID         string     `json:"world_id"`
	Tick            uint64     `json:"tick"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Kinds           []KindInfo `json:"kinds"`
}

type KindInfo struct {
	Name           string  `json:"name"`
	TransferRate   float64 `json:"transfer_rate"`
	CentralStorage bool    `json:"central_storage"`
}

// SYNC (server -> client). Networks carries the full state of every network
// created or changed since the previous SYNC; Removed lists destroyed ids.
// Full is set on the first SYNC after subscribing.
type SyncMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	WorldID         string        `json:"world_id"`
	Tick            uint64        `json:"tick"`
	Full            bool          `json:"full,omitempty"`
	Networks        []pipe.Record `json:"networks"`
	Removed         []RemovedRef  `json:"removed,omitempty"`
}

type RemovedRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Filter returns a copy of m keeping only the given kinds. A nil set keeps
// everything.
func (m SyncMsg) Filter(kinds map[string]bool) SyncMsg {
	if kinds == nil {
		return m
	}
	out := m
	out.Networks = make([]pipe.Record, 0, len(m.Networks))
	for _, r := range m.Networks {
		if kinds[r.Kind] {
			out.Networks = append(out.Networks, r)
		}
	}
	out.Removed = nil
	for _, r := range m.Removed {
		if kinds[r.Kind] {
			out.Removed = append(out.Removed, r)
		}
	}
	return out
}

// Empty reports whether the message carries no change.
func (m SyncMsg) Empty() bool { return len(m.Networks) == 0 && len(m.Removed) == 0 && !m.Full }

// EDIT (client -> server)
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Edits           []Edit `json:"edits"`
}

// Edit operations on the host grid.
const (
	OpPlacePipe      = pipe.OpPlacePipe
	OpRemovePipe     = pipe.OpRemovePipe
	OpSetTerminal    = "SET_TERMINAL"
	OpRemoveTerminal = "REMOVE_TERMINAL"
)

type Edit struct {
	Op       string        `json:"op"`
	Kind     string        `json:"kind,omitempty"`
	Pos      [3]int        `json:"pos"`
	Terminal *TerminalSpec `json:"terminal,omitempty"`
}

// TerminalSpec describes the storage a SET_TERMINAL edit installs.
type TerminalSpec struct {
	Amount float64 `json:"amount,omitempty"`
	// Capacity 0 means unbounded.
	Capacity float64 `json:"capacity,omitempty"`
	Insert   bool    `json:"insert"`
	Extract  bool    `json:"extract"`
	// Faces restricts the exposed sides ("down", "up", "north", "south",
	// "west", "east"). Empty keeps the faces of an existing terminal; a new
	// terminal exposes all of them.
	Faces []string `json:"faces,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
	WorldID         string `json:"world_id,omitempty"`
}
