package feed

import (
	"errors"
	"fmt"
)

// ErrConnectTimeout marks a connection attempt that did not complete
// within the configured deadline. It feeds the reconnect policy.
var ErrConnectTimeout = errors.New("connection attempt timed out")

// ConnectionError is a transport-level open or send failure. It always
// triggers the reconnect policy unless a local disconnect is in progress.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is an inbound payload that could not be interpreted as
// structured data. It is counted and the message passed through raw;
// never fatal to the connection.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
