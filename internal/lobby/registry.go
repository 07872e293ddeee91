package lobby

import (
	"math/rand"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// MaxUsernameLen is the maximum normalized username length in runes.
const MaxUsernameLen = 32

// Registry is the process-wide directory of live connections and games.
// It owns the connection table, the username reservation set, and the game
// table; Games hold non-owning references into the connection table.
//
// Registry methods are not safe for concurrent use: the Dispatcher
// serializes all access.
type Registry struct {
	logger *zap.Logger
	outbox *Outbox
	// newSource provides a fresh RNG source per game for tile shuffling.
	newSource func() rand.Source

	nextConnID int64
	nextGameID int64
	conns      map[int64]*Connection
	usernames  map[string]struct{}
	games      map[int64]*Game
}

// NewRegistry creates an empty registry.
//
// Precondition: logger, outbox, and newSource must be non-nil.
func NewRegistry(logger *zap.Logger, outbox *Outbox, newSource func() rand.Source) *Registry {
	return &Registry{
		logger:     logger,
		outbox:     outbox,
		newSource:  newSource,
		nextConnID: 1,
		nextGameID: 1,
		conns:      make(map[int64]*Connection),
		usernames:  make(map[string]struct{}),
		games:      make(map[int64]*Game),
	}
}

// NormalizeUsername collapses internal whitespace runs to single spaces
// and trims the ends.
func NormalizeUsername(requested string) string {
	return strings.Join(strings.Fields(requested), " ")
}

// Attach admits a new connection under the requested username. The
// username is normalized, then rejected if empty, longer than
// MaxUsernameLen runes, non-printable, or already reserved.
//
// A connection id is consumed even by a failed attach, so ids stay
// strictly increasing; a failed attach is never registered. On failure the
// returned Connection carries only the id and sender, for the fatal-error
// payload, and the error is a *FatalError.
func (r *Registry) Attach(sender Sender, requestedUsername, addr, session string) (*Connection, error) {
	conn := &Connection{
		ID:      r.nextConnID,
		Addr:    addr,
		Session: session,
		Seat:    NoSeat,
		sender:  sender,
	}
	r.nextConnID++

	username := NormalizeUsername(requestedUsername)
	if !validUsername(username) {
		return conn, &FatalError{Code: protocol.InvalidUsername}
	}
	if _, taken := r.usernames[username]; taken {
		return conn, &FatalError{Code: protocol.UsernameAlreadyInUse}
	}

	conn.Username = username
	r.conns[conn.ID] = conn
	r.usernames[username] = struct{}{}

	r.logger.Info("connection attached",
		zap.Int64("conn_id", conn.ID),
		zap.String("username", username),
		zap.String("addr", addr),
		zap.String("session", session),
	)
	return conn, nil
}

// Detach removes a connection. Game-side cleanup runs first so seat
// vacancy and watcher-removal messages precede the global directory
// removal notice, all within the same processing pass.
func (r *Registry) Detach(conn *Connection) {
	if conn.InGame() {
		if g, ok := r.games[conn.GameID]; ok {
			g.RemoveMember(conn)
			r.outbox.Extend(g.Drain())
		}
	}

	delete(r.conns, conn.ID)
	delete(r.usernames, conn.Username)

	r.outbox.Queue(TargetAll, 0, nil, []protocol.Message{
		protocol.Msg(protocol.SetClientIDToData, conn.ID, nil, nil),
	})

	r.logger.Info("connection detached",
		zap.Int64("conn_id", conn.ID),
		zap.String("username", conn.Username),
	)
}

// BroadcastDirectory queues the post-attach payloads: a full directory
// snapshot (every connection, every game, every seat and watcher) to the
// new connection, and a one-entry delta to everyone else. Snapshot entries
// are listed in ascending id order, so wire traces are reproducible.
func (r *Registry) BroadcastDirectory(conn *Connection) {
	snapshot := []protocol.Message{
		protocol.Msg(protocol.SetClientID, conn.ID),
	}
	for _, connID := range sortedKeys(r.conns) {
		c := r.conns[connID]
		snapshot = append(snapshot,
			protocol.Msg(protocol.SetClientIDToData, c.ID, c.Username, c.Addr))
	}
	for _, gameID := range sortedKeys(r.games) {
		g := r.games[gameID]
		snapshot = append(snapshot, protocol.Msg(protocol.SetGameState, gameID, int(g.State)))
		for seat, row := range g.Sheet().Rows() {
			if row.OccupantID == 0 {
				snapshot = append(snapshot,
					protocol.Msg(protocol.SetGamePlayerUsername, gameID, seat, row.Username))
			} else {
				snapshot = append(snapshot,
					protocol.Msg(protocol.SetGamePlayerClientID, gameID, seat, row.OccupantID))
			}
		}
		for _, watcherID := range sortedKeys(g.watchers) {
			snapshot = append(snapshot,
				protocol.Msg(protocol.SetGameWatcherClientID, gameID, watcherID))
		}
	}
	r.outbox.Queue(TargetConnection, conn.ID, nil, snapshot)

	delta := []protocol.Message{
		protocol.Msg(protocol.SetClientIDToData, conn.ID, conn.Username, conn.Addr),
	}
	r.outbox.Queue(TargetAll, 0, map[int64]struct{}{conn.ID: {}}, delta)
}

// CreateGame allocates a new game founded by conn. A connection already in
// a game cannot found another; the request is a silent no-op.
func (r *Registry) CreateGame(conn *Connection) {
	if conn.InGame() {
		return
	}
	gameID := r.nextGameID
	r.nextGameID++

	g := NewGame(gameID, conn, r.newSource())
	r.games[gameID] = g
	r.outbox.Extend(g.Drain())

	r.logger.Info("game created",
		zap.Int64("game_id", gameID),
		zap.Int64("founder", conn.ID),
	)
}

// JoinGame seats conn in an existing game. Unknown game ids and
// connections already in a game are silent no-ops.
func (r *Registry) JoinGame(conn *Connection, gameID int64) {
	r.withGame(conn, gameID, func(g *Game) { g.Join(conn) })
}

// RejoinGame rebinds conn to its reserved seat in an existing game.
func (r *Registry) RejoinGame(conn *Connection, gameID int64) {
	r.withGame(conn, gameID, func(g *Game) { g.Rejoin(conn) })
}

// WatchGame attaches conn to an existing game as a watcher.
func (r *Registry) WatchGame(conn *Connection, gameID int64) {
	r.withGame(conn, gameID, func(g *Game) { g.Watch(conn) })
}

// LeaveGame removes conn from its current game. A connection not in a game
// is a silent no-op.
func (r *Registry) LeaveGame(conn *Connection) {
	if !conn.InGame() {
		return
	}
	g, ok := r.games[conn.GameID]
	if !ok {
		return
	}
	g.RemoveMember(conn)
	r.outbox.Extend(g.Drain())
}

// withGame runs op against gameID when conn is free to enter a game.
func (r *Registry) withGame(conn *Connection, gameID int64, op func(*Game)) {
	if conn.InGame() {
		return
	}
	g, ok := r.games[gameID]
	if !ok {
		return
	}
	op(g)
	r.outbox.Extend(g.Drain())
}

// Connection returns a live connection by id, or nil.
func (r *Registry) Connection(connID int64) *Connection {
	return r.conns[connID]
}

// Game returns a game by id, or nil.
func (r *Registry) Game(gameID int64) *Game {
	return r.games[gameID]
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	return len(r.conns)
}

// GameCount returns the number of games.
func (r *Registry) GameCount() int {
	return len(r.games)
}

// EachConnection visits every live connection.
func (r *Registry) EachConnection(f func(*Connection)) {
	for _, c := range r.conns {
		f(c)
	}
}

// EachGameMember visits every member of one game.
func (r *Registry) EachGameMember(gameID int64, f func(*Connection)) {
	g, ok := r.games[gameID]
	if !ok {
		return
	}
	for _, c := range g.Members() {
		f(c)
	}
}

// sortedKeys returns a map's int64 keys in ascending order.
func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func validUsername(username string) bool {
	runes := []rune(username)
	if len(runes) == 0 || len(runes) > MaxUsernameLen {
		return false
	}
	for _, r := range runes {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
