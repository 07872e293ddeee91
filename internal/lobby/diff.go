package lobby

import "github.com/cory-johannsen/lobbyserver/internal/protocol"

// Target selects the recipient set of one delivery.
type Target int

const (
	// TargetAll delivers to every live connection.
	TargetAll Target = iota
	// TargetGame delivers to every member of one game (players + watchers).
	TargetGame
	// TargetConnection delivers to a single connection.
	TargetConnection
)

// Delivery is one targeted batch of messages awaiting fan-out.
type Delivery struct {
	Target   Target
	TargetID int64 // game id for TargetGame, connection id for TargetConnection
	Exclude  map[int64]struct{}
	Messages []protocol.Message
}

// DiffBuffer is the unified pending-diff store for one game. The board, the
// score sheet, and the game itself all append here, so drain-time merging
// needs no knowledge of which component produced a message.
//
// Three buckets: broadcast-to-everyone, broadcast-to-game-members, and
// per-connection unicast. Within a bucket, order is generation order.
type DiffBuffer struct {
	all       []protocol.Message
	game      []protocol.Message
	perConn   map[int64][]protocol.Message
	connOrder []int64
}

// NewDiffBuffer creates an empty buffer.
func NewDiffBuffer() *DiffBuffer {
	return &DiffBuffer{perConn: make(map[int64][]protocol.Message)}
}

// All queues a message for every live connection.
func (b *DiffBuffer) All(m protocol.Message) {
	b.all = append(b.all, m)
}

// Game queues a message for the owning game's members.
func (b *DiffBuffer) Game(m protocol.Message) {
	b.game = append(b.game, m)
}

// Conn queues a message for a single connection.
func (b *DiffBuffer) Conn(connID int64, m protocol.Message) {
	if _, ok := b.perConn[connID]; !ok {
		b.connOrder = append(b.connOrder, connID)
	}
	b.perConn[connID] = append(b.perConn[connID], m)
}

// Drain returns all pending diffs as ordered deliveries and clears the
// buffer. The all bucket precedes the game bucket, which precedes the
// per-connection buckets; per-connection deliveries appear in the order
// their recipients were first queued.
func (b *DiffBuffer) Drain(gameID int64) []Delivery {
	var out []Delivery
	if len(b.all) > 0 {
		out = append(out, Delivery{Target: TargetAll, Messages: b.all})
	}
	if len(b.game) > 0 {
		out = append(out, Delivery{Target: TargetGame, TargetID: gameID, Messages: b.game})
	}
	for _, connID := range b.connOrder {
		out = append(out, Delivery{
			Target:   TargetConnection,
			TargetID: connID,
			Messages: b.perConn[connID],
		})
	}
	b.all = nil
	b.game = nil
	b.perConn = make(map[int64][]protocol.Message)
	b.connOrder = nil
	return out
}
