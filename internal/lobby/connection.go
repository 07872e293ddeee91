package lobby

// Sender is the transport write handle for one connection. The lobby core
// only needs to hand a finished payload to an identified peer and to force
// the peer closed; framing, handshakes, and keep-alives live behind this
// interface.
//
// Implementations must not block inside Send: delivery is asynchronous.
type Sender interface {
	// Send enqueues one serialized batch for delivery.
	Send(payload []byte) error
	// Close forcibly closes the connection. Safe to call more than once.
	Close()
}

// NoSeat marks a connection that holds no seat in any game.
const NoSeat = -1

// Connection is the identity unit for one attached client.
//
// A Connection references its game and seat by plain identifiers; the
// Registry and the owning Game are the authorities for resolution.
type Connection struct {
	// ID is the unique, monotonically assigned connection id.
	ID int64
	// Username is the normalized username, unique among live connections.
	Username string
	// Addr is the remote address reported by the transport.
	Addr string
	// Session is an opaque token correlating transport-level log lines.
	Session string
	// GameID is the game this connection belongs to, or 0 while in the lobby.
	GameID int64
	// Seat is the seat index within GameID, or NoSeat.
	Seat int

	sender Sender
}

// InGame reports whether the connection currently belongs to a game.
func (c *Connection) InGame() bool {
	return c.GameID != 0
}
