package feed

import (
	"encoding/json"
	"time"
)

// Event is a typed connection lifecycle or data notification. Handlers
// receive one of the concrete variants below.
type Event interface {
	isEvent()
}

// Opened fires when the transport reaches the Open state.
type Opened struct {
	ConnectionID string
}

// Closed fires when the transport leaves the Open or Connecting state.
// Clean distinguishes a local disconnect from a transport failure.
type Closed struct {
	ConnectionID string
	Clean        bool
	Err          error
}

// ErrorOccurred carries a transport or protocol error surfaced for
// observability; recovery is handled internally.
type ErrorOccurred struct {
	ConnectionID string
	Err          error
}

// MessageReceived is a parsed inbound message that is not consumed by the
// connection manager itself. Raw holds the original payload for messages
// that failed structured decoding (Type "raw").
type MessageReceived struct {
	Type       string
	Symbol     string
	Data       json.RawMessage
	Raw        []byte
	ReceivedAt time.Time
}

func (Opened) isEvent()          {}
func (Closed) isEvent()          {}
func (ErrorOccurred) isEvent()   {}
func (MessageReceived) isEvent() {}

// Handler observes events. Handlers run on the manager's goroutines and
// must not block.
type Handler func(Event)
