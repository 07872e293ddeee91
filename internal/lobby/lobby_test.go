package lobby

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender records everything sent to one connection.
type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeSender) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// batches decodes every frame sent so far.
func (f *fakeSender) batches(t *testing.T) [][][]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][][]any, 0, len(f.sent))
	for _, payload := range f.sent {
		var batch [][]any
		require.NoError(t, json.Unmarshal(payload, &batch))
		out = append(out, batch)
	}
	return out
}

// messages flattens all sent frames into one message list.
func (f *fakeSender) messages(t *testing.T) [][]any {
	t.Helper()
	var out [][]any
	for _, batch := range f.batches(t) {
		out = append(out, batch...)
	}
	return out
}

// codesSent returns the leading command code of every message sent.
func (f *fakeSender) codesSent(t *testing.T) []int {
	t.Helper()
	var codes []int
	for _, msg := range f.messages(t) {
		require.NotEmpty(t, msg)
		codes = append(codes, int(msg[0].(float64)))
	}
	return codes
}

func fixedSource(seed int64) func() rand.Source {
	return func() rand.Source { return rand.NewSource(seed) }
}

// newTestRegistry builds a registry with a seeded tile shuffle.
func newTestRegistry(t *testing.T, seed int64) (*Registry, *Outbox) {
	t.Helper()
	outbox := NewOutbox(zap.NewNop())
	return NewRegistry(zap.NewNop(), outbox, fixedSource(seed)), outbox
}

// attach admits a connection under username, failing the test on error.
func attach(t *testing.T, r *Registry, username string) (*Connection, *fakeSender) {
	t.Helper()
	snd := &fakeSender{}
	conn, err := r.Attach(snd, username, "127.0.0.1:1", "session-"+username)
	require.NoError(t, err)
	return conn, snd
}

// drawnTiles replays a seeded bag to predict the first n draws.
func drawnTiles(seed int64, n int) []Tile {
	bag := NewTileBag(rand.NewSource(seed))
	tiles := make([]Tile, 0, n)
	for i := 0; i < n; i++ {
		tile, ok := bag.Draw()
		if !ok {
			break
		}
		tiles = append(tiles, tile)
	}
	return tiles
}
