package lobby

import (
	"fmt"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// FatalError is an identity error reported to the offending connection as
// one outbound message before the connection is forcibly closed.
type FatalError struct {
	Code protocol.FatalErrorCode
}

func (e *FatalError) Error() string {
	switch e.Code {
	case protocol.InvalidUsername:
		return "fatal: invalid username"
	case protocol.UsernameAlreadyInUse:
		return "fatal: username already in use"
	default:
		return fmt.Sprintf("fatal: error code %d", e.Code)
	}
}
