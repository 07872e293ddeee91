// Package ws provides the websocket transport boundary: it accepts
// connections, upgrades them, and shuttles opaque payloads between peers
// and the lobby event loop. Framing, handshakes, and keep-alive live here;
// the lobby core never sees a socket.
package ws

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/lobbyserver/internal/config"
	"github.com/cory-johannsen/lobbyserver/internal/lobby"
)

// EventSink receives transport events. The lobby Dispatcher is the
// production implementation; all three methods serialize through its
// event loop.
type EventSink interface {
	// Open admits a connection and returns its assigned connection id.
	Open(sender lobby.Sender, requestedUsername, addr, session string) int64
	// Inbound delivers one received payload.
	Inbound(connID int64, payload []byte)
	// Closed reports that the peer is gone.
	Closed(connID int64)
}

// Acceptor listens for websocket connections and bridges each one to the
// event sink: an upgrade produces an Open event, every text frame an
// Inbound event, and the connection's end a single Closed event.
type Acceptor struct {
	cfg    config.ListenConfig
	sink   EventSink
	logger *zap.Logger

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; sink and logger must be non-nil.
func NewAcceptor(cfg config.ListenConfig, sink EventSink, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleUpgrade)
	a.httpServer = &http.Server{Handler: mux}
	return a
}

// ListenAndServe starts the listener and accepts connections until Stop is
// called. This method blocks until the acceptor is stopped.
//
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving websocket connections: %w", err)
	}
	return nil
}

// handleUpgrade upgrades one HTTP request and runs the connection's read
// loop. The requested username arrives as the "username" query parameter.
func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	session := uuid.NewString()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	a.wg.Add(1)
	defer a.wg.Done()

	addr := conn.RemoteAddr().String()
	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
		zap.String("session", session),
	)

	snd := newSender(conn, a.cfg.SendBuffer, a.cfg.WriteTimeout)
	go snd.writePump()

	connID := a.sink.Open(snd, username, addr, session)
	if connID == 0 {
		// Dispatcher is shutting down.
		snd.Close()
		return
	}

	a.readLoop(conn, snd, connID, session)
}

// readLoop delivers inbound text frames until the connection ends, then
// emits the Closed event. A binary frame breaks the protocol and ends the
// connection immediately.
func (a *Acceptor) readLoop(conn *websocket.Conn, snd *sender, connID int64, session string) {
	start := time.Now()
	conn.SetReadLimit(a.cfg.MaxPayloadBytes)

	for {
		if a.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			a.logger.Warn("binary frame, closing connection",
				zap.Int64("conn_id", connID),
				zap.String("session", session),
			)
			break
		}
		a.sink.Inbound(connID, payload)
	}

	snd.Close()
	a.sink.Closed(connID)
	a.logger.Info("client disconnected",
		zap.Int64("conn_id", connID),
		zap.String("session", session),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop gracefully stops the acceptor, closing the listener and all active
// connections and waiting for their read loops to finish.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	_ = a.httpServer.Close()
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}
