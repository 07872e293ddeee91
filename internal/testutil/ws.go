// Package testutil provides test clients for integration testing.
package testutil

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a websocket test client for integration testing against a
// running acceptor.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
	// pending holds messages from an already-read frame that ReadUntilCode
	// did not consume, so nothing after a match in the same frame is lost.
	pending [][]any
}

// NewWSClient dials the given address with the given username and returns
// a connected test client.
//
// Precondition: addr must be a "host:port" string with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, addr, username string) *WSClient {
	t.Helper()
	start := time.Now()

	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		RawQuery: url.Values{"username": {username}}.Encode(),
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", u.String(), err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", addr, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// ReadBatch returns messages left unconsumed by a previous ReadUntilCode,
// or reads one frame and decodes it as a message batch, failing the test
// on error or timeout.
func (c *WSClient) ReadBatch(timeout time.Duration) [][]any {
	c.t.Helper()
	if len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		return batch
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	var batch [][]any
	if err := json.Unmarshal(payload, &batch); err != nil {
		c.t.Fatalf("decoding frame %q: %v", payload, err)
	}
	return batch
}

// ReadUntilCode reads messages until one with the given leading code
// arrives, returning that message. Messages before the match are discarded;
// messages after it, including the rest of its frame, stay buffered for
// later reads. Fails the test on timeout.
func (c *WSClient) ReadUntilCode(code int, timeout time.Duration) []any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		batch := c.ReadBatch(time.Until(deadline))
		for i, msg := range batch {
			if len(msg) > 0 {
				if got, ok := msg[0].(float64); ok && int(got) == code {
					c.pending = batch[i+1:]
					return msg
				}
			}
		}
	}
	c.t.Fatalf("no message with code %d within %s", code, timeout)
	return nil
}

// Send encodes one envelope and writes it as a text frame.
func (c *WSClient) Send(msg []any) {
	c.t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("encoding %v: %v", msg, err)
	}
	c.SendRaw(payload)
}

// SendRaw writes raw bytes as a text frame.
func (c *WSClient) SendRaw(payload []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.t.Fatalf("sending %q: %v", payload, err)
	}
}

// SendBinary writes raw bytes as a binary frame.
func (c *WSClient) SendBinary(payload []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		c.t.Fatalf("sending binary: %v", err)
	}
}

// ExpectClose reads until the connection is closed by the server, failing
// the test if it stays open past the timeout.
func (c *WSClient) ExpectClose(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
