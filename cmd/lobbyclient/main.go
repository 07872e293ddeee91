// Package main provides a terminal client for the lobby server: it
// connects under a username, prints decoded lobby traffic, and forwards
// simple commands typed on stdin.
//
// Commands: create | join <id> | rejoin <id> | watch <id> | leave | quit
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

var (
	serverColor = color.New(color.FgCyan)
	errorColor  = color.New(color.FgRed, color.Bold)
	gameColor   = color.New(color.FgGreen)
	boardColor  = color.New(color.FgYellow)
)

// Server-to-client command codes, mirroring internal/protocol.
const (
	cmdFatalError = iota
	cmdSetClientID
	cmdSetClientIDToData
	cmdSetGameState
	cmdSetGamePlayerUsername
	cmdSetGamePlayerClientID
	cmdSetGameWatcherClientID
	cmdReturnWatcherToLobby
	cmdSetGameBoardCell
	cmdSetGameBoard
	cmdSetScoreSheet
)

// Client-to-server command codes.
const (
	cmdCreateGame = iota
	cmdJoinGame
	cmdRejoinGame
	cmdWatchGame
	cmdLeaveGame
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "lobby server address")
	username := flag.String("username", "", "username to connect with")
	flag.Parse()

	if *username == "" {
		log.Fatal("missing -username")
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		RawQuery: url.Values{"username": {*username}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("connecting to %s: %v", u.String(), err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printBatch(payload)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-done:
			return
		default:
		}
		msg, quit := parseCommand(scanner.Text())
		if quit {
			break
		}
		if msg == nil {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			errorColor.Printf("send failed: %v\n", err)
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
}

// parseCommand turns one stdin line into an outbound envelope.
func parseCommand(line string) (msg []any, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}
	withGameID := func(code int) []any {
		if len(fields) != 2 {
			errorColor.Printf("usage: %s <game-id>\n", fields[0])
			return nil
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			errorColor.Printf("bad game id %q\n", fields[1])
			return nil
		}
		return []any{code, id}
	}
	switch fields[0] {
	case "create":
		return []any{cmdCreateGame}, false
	case "join":
		return withGameID(cmdJoinGame), false
	case "rejoin":
		return withGameID(cmdRejoinGame), false
	case "watch":
		return withGameID(cmdWatchGame), false
	case "leave":
		return []any{cmdLeaveGame}, false
	case "quit", "exit":
		return nil, true
	default:
		errorColor.Printf("unknown command %q\n", fields[0])
		return nil, false
	}
}

// printBatch decodes one frame and prints each message on its own line.
func printBatch(payload []byte) {
	var batch [][]any
	if err := json.Unmarshal(payload, &batch); err != nil {
		errorColor.Printf("undecodable frame: %s\n", payload)
		return
	}
	for _, msg := range batch {
		printMessage(msg)
	}
}

// minArgs is the argument count needed to render each message; anything
// shorter is printed raw instead of indexed.
var minArgs = map[int]int{
	cmdSetClientID:            1,
	cmdSetClientIDToData:      2,
	cmdSetGameState:           2,
	cmdSetGamePlayerUsername:  3,
	cmdSetGamePlayerClientID:  3,
	cmdSetGameWatcherClientID: 2,
	cmdReturnWatcherToLobby:   2,
	cmdSetGameBoardCell:       3,
}

func printMessage(msg []any) {
	if len(msg) == 0 {
		return
	}
	code, ok := msg[0].(float64)
	if !ok {
		return
	}
	args := msg[1:]
	if len(args) < minArgs[int(code)] {
		fmt.Printf("message %v\n", msg)
		return
	}
	switch int(code) {
	case cmdFatalError:
		errorColor.Printf("fatal error %v\n", args)
	case cmdSetClientID:
		serverColor.Printf("you are connection %v\n", args)
	case cmdSetClientIDToData:
		if len(args) >= 2 && args[1] == nil {
			serverColor.Printf("connection %v left\n", args[0])
		} else {
			serverColor.Printf("connection %v is %v\n", args[0], args[1:])
		}
	case cmdSetGameState:
		gameColor.Printf("game %v state %v\n", args[0], args[1:])
	case cmdSetGamePlayerUsername:
		gameColor.Printf("game %v seat %v reserved for %v\n", args[0], args[1], args[2])
	case cmdSetGamePlayerClientID:
		gameColor.Printf("game %v seat %v occupant %v\n", args[0], args[1], args[2])
	case cmdSetGameWatcherClientID:
		gameColor.Printf("game %v watcher %v\n", args[0], args[1])
	case cmdReturnWatcherToLobby:
		gameColor.Printf("game %v watcher %v returned to lobby\n", args[0], args[1])
	case cmdSetGameBoardCell:
		boardColor.Printf("cell (%v,%v) -> %v\n", args[0], args[1], args[2])
	case cmdSetGameBoard:
		boardColor.Println("full board snapshot")
	case cmdSetScoreSheet:
		boardColor.Println("full scoreboard snapshot")
	default:
		fmt.Printf("message %v\n", msg)
	}
}
