package lobby

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/lobbyserver/internal/protocol"
)

// RecipientResolver turns a delivery target into a concrete recipient set.
// The Registry is the production implementation.
type RecipientResolver interface {
	// EachConnection visits every live connection.
	EachConnection(f func(*Connection))
	// EachGameMember visits every member (player or watcher) of one game.
	EachGameMember(gameID int64, f func(*Connection))
	// Connection returns a live connection by id, or nil.
	Connection(connID int64) *Connection
}

// Outbox is the ordered queue of targeted deliveries produced while one
// inbound event is processed. After the event finishes, Flush resolves
// each delivery's recipient set, serializes the batch once, and delivers
// the identical bytes to every recipient, so all recipients of a batch
// observe the same state transition.
type Outbox struct {
	logger  *zap.Logger
	pending []Delivery
}

// NewOutbox creates an empty outbox.
//
// Precondition: logger must be non-nil.
func NewOutbox(logger *zap.Logger) *Outbox {
	return &Outbox{logger: logger}
}

// Queue appends one targeted delivery.
func (o *Outbox) Queue(target Target, targetID int64, exclude map[int64]struct{}, messages []protocol.Message) {
	if len(messages) == 0 {
		return
	}
	o.pending = append(o.pending, Delivery{
		Target:   target,
		TargetID: targetID,
		Exclude:  exclude,
		Messages: messages,
	})
}

// Extend appends already-built deliveries, typically a game drain.
func (o *Outbox) Extend(deliveries []Delivery) {
	o.pending = append(o.pending, deliveries...)
}

// Pending returns the number of queued deliveries.
func (o *Outbox) Pending() int {
	return len(o.pending)
}

// Flush walks the queued deliveries in order, fans each batch out to its
// resolved recipients minus exclusions, and clears the queue. Send errors
// are logged and skipped: a failing connection is torn down by its own
// transport close event, never mid-flush.
func (o *Outbox) Flush(resolver RecipientResolver) {
	for _, d := range o.pending {
		payload, err := protocol.EncodeBatch(d.Messages)
		if err != nil {
			o.logger.Error("encoding outbound batch",
				zap.Int("messages", len(d.Messages)),
				zap.Error(err),
			)
			continue
		}
		deliver := func(c *Connection) {
			if _, excluded := d.Exclude[c.ID]; excluded {
				return
			}
			if err := c.sender.Send(payload); err != nil {
				o.logger.Warn("dropping outbound batch",
					zap.Int64("conn_id", c.ID),
					zap.Error(err),
				)
			}
		}
		switch d.Target {
		case TargetAll:
			resolver.EachConnection(deliver)
		case TargetGame:
			resolver.EachGameMember(d.TargetID, deliver)
		case TargetConnection:
			if c := resolver.Connection(d.TargetID); c != nil {
				deliver(c)
			}
		}
	}
	o.pending = nil
}
