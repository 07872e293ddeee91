// Package protocol defines the closed command-code enumerations and the
// positional-array message envelope exchanged between the lobby server and
// its clients. A message is a JSON array whose first element is an integer
// command code and whose remaining elements are positional arguments; a
// batch is an array of such messages delivered as one websocket text frame.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// ToServer enumerates commands a client may send.
type ToServer int

const (
	CreateGame ToServer = iota
	JoinGame
	RejoinGame
	WatchGame
	LeaveGame
)

// ToClient enumerates commands the server sends.
type ToClient int

const (
	FatalError ToClient = iota
	SetClientID
	SetClientIDToData
	SetGameState
	SetGamePlayerUsername
	SetGamePlayerClientID
	SetGameWatcherClientID
	ReturnWatcherToLobby
	SetGameBoardCell
	SetGameBoard
	SetScoreSheet
)

// FatalErrorCode enumerates the identity errors reported to a client
// immediately before its connection is closed.
type FatalErrorCode int

const (
	InvalidUsername FatalErrorCode = iota
	UsernameAlreadyInUse
)

// CellState enumerates the closed set of board cell values. The seven chain
// tags are reserved for the rule engine; the core only writes Nothing,
// NothingYet, and the private IHaveThis marker.
type CellState int

const (
	Luxor CellState = iota
	Tower
	American
	Festival
	Worldwide
	Continental
	Imperial
	Nothing      // empty cell
	NothingYet   // reserved, chain affiliation not yet revealed
	CantPlayEver // permanently unplayable
	IHaveThis    // already owned by the viewing player
)

// ChainCount is the number of corporation chains tracked per game.
const ChainCount = 7

// GameState enumerates a game's lifecycle tag. Only Starting has core
// semantics; the rest are opaque tags reserved for the rule engine.
type GameState int

const (
	Starting GameState = iota
	InProgress
	Completed
)

// Message is one positional envelope: the command code followed by its
// arguments, in wire order.
type Message []any

// Msg builds a server-to-client message from a code and its arguments.
func Msg(code ToClient, args ...any) Message {
	m := make(Message, 0, len(args)+1)
	m = append(m, int(code))
	return append(m, args...)
}

// EncodeBatch serializes a batch of messages into a single frame payload.
//
// Postcondition: the returned bytes are a JSON array of arrays.
func EncodeBatch(batch []Message) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	return data, nil
}

// ErrProtocolViolation marks an inbound payload that breaks framing rules:
// undecodable JSON, a non-array envelope, or an unknown or non-integer
// command code. The offending connection is closed without an error payload.
type ErrProtocolViolation struct {
	Reason string
}

func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// DecodeCommand parses one inbound payload into its command code and raw
// positional arguments. Argument arity and typing are the caller's concern.
func DecodeCommand(payload []byte) (ToServer, []any, error) {
	var envelope []any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return 0, nil, &ErrProtocolViolation{Reason: "undecodable payload"}
	}
	if len(envelope) == 0 {
		return 0, nil, &ErrProtocolViolation{Reason: "empty envelope"}
	}
	code, ok := AsInt(envelope[0])
	if !ok {
		return 0, nil, &ErrProtocolViolation{Reason: "non-integer command code"}
	}
	cmd := ToServer(code)
	if cmd < CreateGame || cmd > LeaveGame {
		return 0, nil, &ErrProtocolViolation{Reason: fmt.Sprintf("unknown command code %d", code)}
	}
	return cmd, envelope[1:], nil
}

// AsInt converts a decoded JSON number to an exact int64.
// JSON numbers arrive as float64; fractional or out-of-range values fail.
func AsInt(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
