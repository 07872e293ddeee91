package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMsgLayout(t *testing.T) {
	m := Msg(SetGamePlayerClientID, int64(3), 0, int64(10))
	assert.Equal(t, Message{int(SetGamePlayerClientID), int64(3), 0, int64(10)}, m)
}

func TestEncodeBatch(t *testing.T) {
	payload, err := EncodeBatch([]Message{
		Msg(SetClientID, int64(1)),
		Msg(SetClientIDToData, int64(1), "alice", "127.0.0.1:5000"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,1],[2,1,"alice","127.0.0.1:5000"]]`, string(payload))
}

func TestEncodeBatchEmpty(t *testing.T) {
	payload, err := EncodeBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(payload))
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCmd  ToServer
		wantArgs []any
	}{
		{"create game", `[0]`, CreateGame, []any{}},
		{"join game", `[1,7]`, JoinGame, []any{float64(7)}},
		{"rejoin game", `[2,7]`, RejoinGame, []any{float64(7)}},
		{"watch game", `[3,7]`, WatchGame, []any{float64(7)}},
		{"leave game", `[4]`, LeaveGame, []any{}},
		{"extra args pass through", `[1,7,"x"]`, JoinGame, []any{float64(7), "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := DecodeCommand([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.ElementsMatch(t, tt.wantArgs, args)
		})
	}
}

func TestDecodeCommandViolations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"object envelope", `{"cmd":0}`},
		{"bare number", `0`},
		{"empty array", `[]`},
		{"string code", `["create"]`},
		{"fractional code", `[1.5]`},
		{"negative code", `[-1]`},
		{"code past last command", `[5]`},
		{"null code", `[null]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCommand([]byte(tt.payload))
			var violation *ErrProtocolViolation
			require.ErrorAs(t, err, &violation)
			assert.NotEmpty(t, violation.Reason)
		})
	}
}

func TestAsInt(t *testing.T) {
	v, ok := AsInt(float64(42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = AsInt(float64(1.5))
	assert.False(t, ok)

	_, ok = AsInt("42")
	assert.False(t, ok)

	_, ok = AsInt(nil)
	assert.False(t, ok)

	v, ok = AsInt(float64(-3))
	assert.True(t, ok)
	assert.Equal(t, int64(-3), v)
}

func TestPropertyDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.IntRange(int(CreateGame), int(LeaveGame)).Draw(t, "code")
		args := rapid.SliceOfN(rapid.Int64Range(-1e9, 1e9), 0, 4).Draw(t, "args")

		envelope := make([]any, 0, len(args)+1)
		envelope = append(envelope, code)
		for _, a := range args {
			envelope = append(envelope, a)
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			t.Fatal(err)
		}

		cmd, gotArgs, err := DecodeCommand(payload)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if cmd != ToServer(code) {
			t.Fatalf("decoded command %d, want %d", cmd, code)
		}
		if len(gotArgs) != len(args) {
			t.Fatalf("decoded %d args, want %d", len(gotArgs), len(args))
		}
		for i, a := range args {
			got, ok := AsInt(gotArgs[i])
			if !ok || got != a {
				t.Fatalf("arg %d decoded as %v, want %d", i, gotArgs[i], a)
			}
		}
	})
}
