package feed

import "encoding/json"

// MessageTypeOrderbook identifies full order book snapshots on the wire.
const MessageTypeOrderbook = "orderbook_update"

// MessageTypeRaw tags payloads that failed structured decoding and are
// passed through as-is.
const MessageTypeRaw = "raw"

// envelope is the streaming message wrapper received from the feed.
type envelope struct {
	Type        string          `json:"type"`
	Symbol      string          `json:"symbol,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	RequestTime int64           `json:"requestTime,omitempty"`
}

// ControlMessage is a subscribe/unsubscribe request sent to the feed.
type ControlMessage struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"timestamp"`
}

// pingMessage is the heartbeat probe; the server echoes RequestTime in
// its pong so round-trip latency can be measured.
type pingMessage struct {
	Type         string `json:"type"`
	RequestTime  int64  `json:"requestTime"`
	ConnectionID string `json:"connectionId"`
}
