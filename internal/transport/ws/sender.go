package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sender is the per-connection outbound side: a buffered frame queue
// drained by a single write pump goroutine. The lobby core hands it
// finished payloads and never blocks on the socket.
type sender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	frames chan []byte
	closed bool
}

func newSender(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *sender {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &sender{
		conn:         conn,
		writeTimeout: writeTimeout,
		frames:       make(chan []byte, bufferSize),
	}
}

// Send enqueues one text frame. A closed sender or a full queue is an
// error; a peer slow enough to fill the queue is disconnected rather than
// allowed to stall the event loop.
func (s *sender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("connection closed")
	}
	select {
	case s.frames <- payload:
		return nil
	default:
		return fmt.Errorf("outbound queue full")
	}
}

// Close marks the sender closed and ends the write pump, which sends a
// close frame and closes the socket. Safe to call more than once.
func (s *sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// writePump drains the frame queue onto the socket. It exits when the
// sender is closed or a write fails, closing the underlying connection
// either way.
func (s *sender) writePump() {
	defer s.conn.Close()

	for payload := range s.frames {
		if s.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.Close()
			// Drain remaining frames so Close's channel close is observed.
			for range s.frames {
			}
			return
		}
	}

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
