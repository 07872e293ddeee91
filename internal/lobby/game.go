package lobby

import (
	"math/rand"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// Game orchestrates one session: a board, a score sheet, a tile bag, and
// the member/watcher set. It owns the game's lifecycle state and produces
// outbound diffs through its DiffBuffer.
//
// Games are never destroyed; an emptied game persists for the process
// lifetime so its seats stay reserved for rejoining players.
type Game struct {
	// ID is the unique, monotonically assigned game id.
	ID int64
	// State is the lifecycle tag carried in every SetGameState broadcast.
	// Only Starting has core semantics.
	State protocol.GameState

	board *GameBoard
	sheet *ScoreSheet
	bag   *TileBag

	// members holds every connection attached to this game, players and
	// watchers alike; watchers is the watcher subset. Both are non-owning
	// references into the registry's connection table.
	members  map[int64]*Connection
	watchers map[int64]*Connection

	diffs *DiffBuffer
}

// NewGame creates a game with founder as its first seated player. The tile
// bag is shuffled once with src.
//
// Precondition: founder must be attached and not already in a game.
func NewGame(id int64, founder *Connection, src rand.Source) *Game {
	g := &Game{
		ID:       id,
		State:    protocol.Starting,
		members:  make(map[int64]*Connection),
		watchers: make(map[int64]*Connection),
		diffs:    NewDiffBuffer(),
	}
	g.board = NewGameBoard(g.diffs)
	g.sheet = NewScoreSheet(id, g.diffs, func(connID int64) *Connection {
		return g.members[connID]
	})
	g.bag = NewTileBag(src)

	g.diffs.All(protocol.Msg(protocol.SetGameState, g.ID, int(g.State)))
	g.addSeat(founder)
	return g
}

// Join seats a new player. Only a Starting game accepts joins, and a
// username already holding a seat cannot take a second one; either
// conflict is a silent no-op.
func (g *Game) Join(conn *Connection) {
	if g.State != protocol.Starting || g.sheet.HasUsername(conn.Username) {
		return
	}
	g.addSeat(conn)
}

// Rejoin rebinds conn to the vacant seat reserved for its username and
// sends it a full snapshot, since it missed every diff while disconnected.
// A username with no vacant seat here is a silent no-op.
func (g *Game) Rejoin(conn *Connection) {
	g.members[conn.ID] = conn
	if !g.sheet.Rejoin(conn) {
		delete(g.members, conn.ID)
		return
	}
	conn.GameID = g.ID
	g.sendSnapshot(conn)
}

// Watch attaches conn as a non-seated watcher, announces it, and sends it
// a full snapshot. A username holding a seat in this game cannot watch it.
func (g *Game) Watch(conn *Connection) {
	if g.sheet.HasUsername(conn.Username) {
		return
	}
	g.members[conn.ID] = conn
	g.watchers[conn.ID] = conn
	conn.GameID = g.ID
	g.diffs.All(protocol.Msg(protocol.SetGameWatcherClientID, g.ID, conn.ID))
	g.sendSnapshot(conn)
}

// RemoveMember detaches conn from the game: a watcher is returned to the
// lobby, a seated player's seat is vacated (username and scoring state
// retained), and the connection leaves the member map.
func (g *Game) RemoveMember(conn *Connection) {
	conn.GameID = 0
	if _, ok := g.watchers[conn.ID]; ok {
		delete(g.watchers, conn.ID)
		g.diffs.All(protocol.Msg(protocol.ReturnWatcherToLobby, g.ID, conn.ID))
	}
	g.sheet.RemoveConnection(conn)
	delete(g.members, conn.ID)
}

// Drain returns, and atomically clears, all queued outbound diffs.
func (g *Game) Drain() []Delivery {
	return g.diffs.Drain(g.ID)
}

// Members returns the member map (players + watchers). Callers must not
// mutate it.
func (g *Game) Members() map[int64]*Connection {
	return g.members
}

// Sheet returns the game's score sheet.
func (g *Game) Sheet() *ScoreSheet {
	return g.sheet
}

// Board returns the game's board.
func (g *Game) Board() *GameBoard {
	return g.board
}

// addSeat draws a starting tile, reserves its cell, and seats conn. With
// the bag exhausted there is no tile to order the seat by, so the join is
// dropped; a Starting game cannot realistically outdraw 108 tiles.
func (g *Game) addSeat(conn *Connection) {
	tile, ok := g.bag.Draw()
	if !ok {
		return
	}
	g.members[conn.ID] = conn
	conn.GameID = g.ID
	g.board.SetCell(tile, protocol.NothingYet)
	g.sheet.AddPlayer(conn, tile)
}

// sendSnapshot queues the full board and scoreboard to one connection.
func (g *Game) sendSnapshot(conn *Connection) {
	g.diffs.Conn(conn.ID, protocol.Msg(protocol.SetGameBoard, g.board.Grid()))
	g.diffs.Conn(conn.ID, protocol.Msg(protocol.SetScoreSheet, g.sheet.Snapshot()))
}
