package lobby

import (
	"sort"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// StartingCash is the cash every seat begins with.
const StartingCash = 60

// SeatRow is one seat in a game. The username is permanent once the row is
// created and is the rejoin key; the occupant comes and goes with
// connections. Scoring state is retained across occupant changes.
type SeatRow struct {
	Username     string
	StartingTile Tile
	// OccupantID is the id of the connection holding the seat, or 0 while
	// the seat's player is disconnected.
	OccupantID int64
	// First marks the seat created by the game's founding player.
	First    bool
	Holdings [protocol.ChainCount]int
	Cash     int
	Net      int
}

// ScoreSheet is the ordered roster of players in one game.
//
// Invariant: rows are sorted by ascending starting tile, so a row's slice
// index is its seat index: a contiguous permutation of 0..N-1.
type ScoreSheet struct {
	gameID int64
	rows   []*SeatRow

	// Chain ledger slots for the rule engine; included in snapshots.
	Available [protocol.ChainCount]int
	ChainSize [protocol.ChainCount]int
	Price     [protocol.ChainCount]int

	diffs *DiffBuffer
	// resolve maps a live occupant id to its Connection so re-sorting can
	// push updated seat indices back onto connections. The owning Game
	// supplies a closure over its member map; rows never hold pointers.
	resolve func(connID int64) *Connection
}

// NewScoreSheet creates an empty sheet for the given game.
//
// Precondition: diffs and resolve must be non-nil.
func NewScoreSheet(gameID int64, diffs *DiffBuffer, resolve func(int64) *Connection) *ScoreSheet {
	s := &ScoreSheet{
		gameID:  gameID,
		diffs:   diffs,
		resolve: resolve,
	}
	for i := range s.Available {
		s.Available[i] = 25
	}
	return s
}

// AddPlayer appends a seat for conn bound to startingTile, re-sorts all
// rows by starting tile, and reassigns seat indices to match. Joining can
// shift earlier players' seats, so every seat at or after the new seat is
// re-announced to all observers. Privately, the new player is sent a
// reserved-cell marker for every other seat's starting tile: those cells
// were revealed to earlier members before this player could observe them.
func (s *ScoreSheet) AddPlayer(conn *Connection, startingTile Tile) {
	row := &SeatRow{
		Username:     conn.Username,
		StartingTile: startingTile,
		OccupantID:   conn.ID,
		First:        len(s.rows) == 0,
		Cash:         StartingCash,
		Net:          StartingCash,
	}
	s.rows = append(s.rows, row)
	sort.SliceStable(s.rows, func(i, j int) bool {
		return s.rows[i].StartingTile.Less(s.rows[j].StartingTile)
	})
	s.reseat()

	for seat := conn.Seat; seat < len(s.rows); seat++ {
		s.announceSeat(seat)
	}
	for seat, r := range s.rows {
		if seat == conn.Seat {
			continue
		}
		s.diffs.Conn(conn.ID, protocol.Msg(protocol.SetGameBoardCell,
			r.StartingTile.X, r.StartingTile.Y, int(protocol.NothingYet)))
	}
}

// Rejoin binds conn to the vacant seat whose username matches. Reports
// false when no such seat exists or the seat is occupied.
func (s *ScoreSheet) Rejoin(conn *Connection) bool {
	for seat, row := range s.rows {
		if row.Username != conn.Username {
			continue
		}
		if row.OccupantID != 0 {
			return false
		}
		row.OccupantID = conn.ID
		conn.Seat = seat
		s.announceSeat(seat)
		return true
	}
	return false
}

// RemoveConnection vacates the seat held by conn, retaining the username
// and scoring state for a future rejoin, and announces the vacancy.
func (s *ScoreSheet) RemoveConnection(conn *Connection) {
	for seat, row := range s.rows {
		if row.OccupantID != conn.ID {
			continue
		}
		row.OccupantID = 0
		conn.Seat = NoSeat
		s.diffs.All(protocol.Msg(protocol.SetGamePlayerClientID, s.gameID, seat, nil))
		return
	}
}

// HasUsername reports whether any seat, occupied or vacant, belongs to the
// given username.
func (s *ScoreSheet) HasUsername(username string) bool {
	for _, row := range s.rows {
		if row.Username == username {
			return true
		}
	}
	return false
}

// Rows returns the seat rows in seat order.
func (s *ScoreSheet) Rows() []*SeatRow {
	return s.rows
}

// Snapshot returns the full scoreboard payload for a SetScoreSheet message:
// per-seat scoring rows plus the chain ledger vectors.
func (s *ScoreSheet) Snapshot() []any {
	rows := make([][]any, len(s.rows))
	for i, row := range s.rows {
		r := make([]any, 0, protocol.ChainCount+2)
		for _, h := range row.Holdings {
			r = append(r, h)
		}
		r = append(r, row.Cash, row.Net)
		rows[i] = r
	}
	return []any{rows, s.Available, s.ChainSize, s.Price}
}

// reseat reassigns contiguous seat indices after a sort, pushing the new
// index onto each seat's live connection.
func (s *ScoreSheet) reseat() {
	for seat, row := range s.rows {
		if row.OccupantID == 0 {
			continue
		}
		if c := s.resolve(row.OccupantID); c != nil {
			c.Seat = seat
		}
	}
}

// announceSeat broadcasts the current binding of one seat: the occupying
// connection id when the seat is held, otherwise the permanent username
// reserving it.
func (s *ScoreSheet) announceSeat(seat int) {
	row := s.rows[seat]
	if row.OccupantID == 0 {
		s.diffs.All(protocol.Msg(protocol.SetGamePlayerUsername, s.gameID, seat, row.Username))
		return
	}
	s.diffs.All(protocol.Msg(protocol.SetGamePlayerClientID, s.gameID, seat, row.OccupantID))
}
