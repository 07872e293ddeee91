// Package lobby implements the session/game-state synchronization core:
// the registry of connections and games, per-game membership and
// reconnection, and the targeted message-batching protocol that keeps
// every observer's view of shared state consistent.
package lobby

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// Dispatcher is the serialized event loop owning all mutable lobby state.
// Exactly one inbound event (connection open, decoded command, or
// connection close) is processed at a time, start to finish; after each
// event every pending delivery is flushed. Transport goroutines post
// events through Open, Inbound, and Closed and never touch state directly,
// so the registry and games need no locks.
type Dispatcher struct {
	logger   *zap.Logger
	registry *Registry
	outbox   *Outbox

	events chan event
	quit   chan struct{}
	done   chan struct{}
}

type eventKind int

const (
	eventOpen eventKind = iota
	eventInbound
	eventClosed
)

type event struct {
	kind     eventKind
	connID   int64
	payload  []byte
	sender   Sender
	username string
	addr     string
	session  string
	reply    chan int64
}

// NewDispatcher creates a dispatcher with an empty registry. newSource
// seeds each game's tile shuffle; pass nil for time-seeded production
// behavior.
//
// Precondition: logger must be non-nil.
func NewDispatcher(logger *zap.Logger, newSource func() rand.Source) *Dispatcher {
	if newSource == nil {
		newSource = func() rand.Source {
			return rand.NewSource(time.Now().UnixNano())
		}
	}
	outbox := NewOutbox(logger)
	return &Dispatcher{
		logger:   logger,
		registry: NewRegistry(logger, outbox, newSource),
		outbox:   outbox,
		events:   make(chan event, 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Registry exposes the dispatcher's registry for tests and diagnostics.
// Callers outside the event loop must treat it as read-only.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Start runs the event loop. It blocks until Stop is called.
func (d *Dispatcher) Start() error {
	defer close(d.done)
	for {
		select {
		case ev := <-d.events:
			d.handle(ev)
		case <-d.quit:
			return nil
		}
	}
}

// Stop terminates the event loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	close(d.quit)
	<-d.done
}

// Open admits a new transport connection and returns its connection id.
// The id is assigned even when the attach is rejected, so the transport
// can correlate the subsequent close. Open returns only after the open
// event has been fully processed and its deliveries flushed.
func (d *Dispatcher) Open(sender Sender, requestedUsername, addr, session string) int64 {
	reply := make(chan int64, 1)
	d.post(event{
		kind:     eventOpen,
		sender:   sender,
		username: requestedUsername,
		addr:     addr,
		session:  session,
		reply:    reply,
	})
	select {
	case id := <-reply:
		return id
	case <-d.quit:
		return 0
	}
}

// Inbound posts one decoded-frame payload from a connection.
func (d *Dispatcher) Inbound(connID int64, payload []byte) {
	d.post(event{kind: eventInbound, connID: connID, payload: payload})
}

// Closed posts a transport close notification for a connection.
func (d *Dispatcher) Closed(connID int64) {
	d.post(event{kind: eventClosed, connID: connID})
}

func (d *Dispatcher) post(ev event) {
	select {
	case d.events <- ev:
	case <-d.quit:
	}
}

// handle processes one event to completion, then flushes the outbox. The
// open reply is delivered last, so a returned Open call has observed the
// whole fan-out of its own event.
func (d *Dispatcher) handle(ev event) {
	var openID int64
	switch ev.kind {
	case eventOpen:
		openID = d.handleOpen(ev)
	case eventInbound:
		d.handleInbound(ev)
	case eventClosed:
		d.handleClosed(ev)
	}
	d.outbox.Flush(d.registry)
	if ev.reply != nil {
		ev.reply <- openID
	}
}

func (d *Dispatcher) handleOpen(ev event) int64 {
	conn, err := d.registry.Attach(ev.sender, ev.username, ev.addr, ev.session)

	var fatal *FatalError
	if errors.As(err, &fatal) {
		// Fatal identity errors are reported as one payload directly to the
		// rejected peer; it was never registered, so the outbox cannot
		// address it.
		batch := []protocol.Message{
			protocol.Msg(protocol.SetClientID, conn.ID),
			protocol.Msg(protocol.FatalError, int(fatal.Code)),
		}
		payload, encErr := protocol.EncodeBatch(batch)
		if encErr == nil {
			_ = ev.sender.Send(payload)
		}
		ev.sender.Close()
		d.logger.Info("attach rejected",
			zap.Int64("conn_id", conn.ID),
			zap.String("requested_username", ev.username),
			zap.String("reason", fatal.Error()),
		)
		return conn.ID
	}

	d.registry.BroadcastDirectory(conn)
	return conn.ID
}

func (d *Dispatcher) handleInbound(ev event) {
	conn := d.registry.Connection(ev.connID)
	if conn == nil {
		return
	}

	cmd, args, err := protocol.DecodeCommand(ev.payload)
	if err != nil {
		d.violation(conn, err)
		return
	}

	switch cmd {
	case protocol.CreateGame:
		if len(args) != 0 {
			d.violation(conn, badArity(cmd, args))
			return
		}
		d.registry.CreateGame(conn)
	case protocol.JoinGame:
		gameID, ok := oneGameID(args)
		if !ok {
			d.violation(conn, badArity(cmd, args))
			return
		}
		d.registry.JoinGame(conn, gameID)
	case protocol.RejoinGame:
		gameID, ok := oneGameID(args)
		if !ok {
			d.violation(conn, badArity(cmd, args))
			return
		}
		d.registry.RejoinGame(conn, gameID)
	case protocol.WatchGame:
		gameID, ok := oneGameID(args)
		if !ok {
			d.violation(conn, badArity(cmd, args))
			return
		}
		d.registry.WatchGame(conn, gameID)
	case protocol.LeaveGame:
		if len(args) != 0 {
			d.violation(conn, badArity(cmd, args))
			return
		}
		d.registry.LeaveGame(conn)
	}
}

func (d *Dispatcher) handleClosed(ev event) {
	conn := d.registry.Connection(ev.connID)
	if conn == nil {
		// Rejected attaches and double closes land here.
		return
	}
	d.registry.Detach(conn)
}

// violation closes a connection that broke the protocol. No error payload
// is sent; the transport close event performs the registry cleanup.
func (d *Dispatcher) violation(conn *Connection, err error) {
	d.logger.Warn("protocol violation",
		zap.Int64("conn_id", conn.ID),
		zap.Error(err),
	)
	conn.sender.Close()
}

func oneGameID(args []any) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	return protocol.AsInt(args[0])
}

func badArity(cmd protocol.ToServer, args []any) error {
	return &protocol.ErrProtocolViolation{
		Reason: fmt.Sprintf("bad argument list for command %d (%d args)", cmd, len(args)),
	}
}
