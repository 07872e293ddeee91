package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/lobbyserver/internal/config"
	"github.com/cory-johannsen/lobbyserver/internal/lobby"
	"github.com/cory-johannsen/lobbyserver/internal/protocol"
	"github.com/cory-johannsen/lobbyserver/internal/testutil"
)

// startServer runs a dispatcher and acceptor on an ephemeral port and
// returns the listen address.
func startServer(t *testing.T) string {
	t.Helper()

	dispatcher := lobby.NewDispatcher(zaptest.NewLogger(t), nil)
	go func() { _ = dispatcher.Start() }()
	t.Cleanup(dispatcher.Stop)

	cfg := config.ListenConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     time.Minute,
		WriteTimeout:    5 * time.Second,
		MaxPayloadBytes: 4096,
		SendBuffer:      64,
	}
	acceptor := NewAcceptor(cfg, dispatcher, zaptest.NewLogger(t))
	go func() { _ = acceptor.ListenAndServe() }()
	t.Cleanup(acceptor.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for acceptor.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("acceptor did not start listening in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return acceptor.Addr()
}

// readUntil reads frames until a message satisfies pred.
func readUntil(t *testing.T, c *testutil.WSClient, timeout time.Duration, pred func([]any) bool) []any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, msg := range c.ReadBatch(time.Until(deadline)) {
			if pred(msg) {
				return msg
			}
		}
	}
	t.Fatalf("no matching message within %s", timeout)
	return nil
}

func hasCode(code protocol.ToClient) func([]any) bool {
	return func(msg []any) bool {
		if len(msg) == 0 {
			return false
		}
		got, ok := msg[0].(float64)
		return ok && int(got) == int(code)
	}
}

func TestConnectReceivesClientID(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")

	msg := alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)
	require.Len(t, msg, 2)
	assert.Equal(t, float64(1), msg[1])

	// The snapshot arrives as one frame; the directory entry behind the
	// client-id assignment must still be readable.
	entry := alice.ReadUntilCode(int(protocol.SetClientIDToData), 5*time.Second)
	require.GreaterOrEqual(t, len(entry), 3)
	assert.Equal(t, float64(1), entry[1])
	assert.Equal(t, "alice", entry[2])
}

func TestDuplicateUsernameGetsFatalError(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	dup := testutil.NewWSClient(t, addr, "alice")
	msg := dup.ReadUntilCode(int(protocol.FatalError), 5*time.Second)
	require.Len(t, msg, 2)
	assert.Equal(t, float64(protocol.UsernameAlreadyInUse), msg[1])
	dup.ExpectClose(5 * time.Second)
}

func TestDirectoryAnnouncesNewConnections(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	bob := testutil.NewWSClient(t, addr, "bob")
	bob.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	// alice learns of bob, bob's snapshot includes alice.
	msg := readUntil(t, alice, 5*time.Second, func(m []any) bool {
		return hasCode(protocol.SetClientIDToData)(m) && len(m) >= 3 && m[2] == "bob"
	})
	assert.Equal(t, float64(2), msg[1])

	readUntil(t, bob, 5*time.Second, func(m []any) bool {
		return hasCode(protocol.SetClientIDToData)(m) && len(m) >= 3 && m[2] == "alice"
	})
}

func TestCreateAndJoinGameOverWire(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)
	bob := testutil.NewWSClient(t, addr, "bob")
	bob.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	alice.Send([]any{int(protocol.CreateGame)})

	msg := bob.ReadUntilCode(int(protocol.SetGameState), 5*time.Second)
	assert.Equal(t, float64(1), msg[1])
	assert.Equal(t, float64(protocol.Starting), msg[2])

	bob.Send([]any{int(protocol.JoinGame), 1})

	// alice observes bob's seat binding and his starting-cell reservation.
	readUntil(t, alice, 5*time.Second, func(m []any) bool {
		return hasCode(protocol.SetGamePlayerClientID)(m) &&
			len(m) == 4 && m[3] == float64(2)
	})
	alice.ReadUntilCode(int(protocol.SetGameBoardCell), 5*time.Second)
}

func TestMalformedPayloadClosesConnection(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	alice.SendRaw([]byte("not json"))
	alice.ExpectClose(5 * time.Second)
}

func TestBinaryFrameClosesConnection(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)

	alice.SendBinary([]byte{0x01, 0x02})
	alice.ExpectClose(5 * time.Second)
}

func TestDisconnectReleasesUsername(t *testing.T) {
	addr := startServer(t)
	alice := testutil.NewWSClient(t, addr, "alice")
	alice.ReadUntilCode(int(protocol.SetClientID), 5*time.Second)
	alice.Close()

	// The close event races the reconnect, so retry until the name frees.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		again := testutil.NewWSClient(t, addr, "alice")
		batch := again.ReadBatch(5 * time.Second)
		require.NotEmpty(t, batch)

		rejected := false
		for _, m := range batch {
			if hasCode(protocol.FatalError)(m) {
				rejected = true
			}
		}
		if !rejected {
			return
		}
		again.Close()
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("username was not released after disconnect")
}
