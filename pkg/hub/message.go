// Package hub fans ledger events out to websocket clients using a
// channel-based broadcast loop.
package hub

import "encoding/json"

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded text message.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data.
	BinaryMessage
)

// Message is one broadcast payload. Key, when set, lets a client skip a
// message it already received in its backlog.
type Message struct {
	Type MessageType
	Data []byte
	Key  string
}

// NewJSONMessage creates a JSON message.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// Envelope is the JSON frame sent to event subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode marshals an envelope into a keyed JSON message.
func Encode(kind, key string, data any) (Message, error) {
	b, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: JSONMessage, Data: b, Key: key}, nil
}
