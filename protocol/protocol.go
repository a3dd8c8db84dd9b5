// Package protocol defines the JSON frames exchanged over a live
// connection. Frames form a closed set: one inbound request type and
// four outbound event types, decoded and validated once at the boundary.
package protocol

import (
	"encoding/json"
	"errors"

	"talk2me/models"
)

var ErrInvalidFrame = errors.New("invalid frame format")

// Frame types.
const (
	TypeMessage     = "message"      // inbound: send request
	TypeMessageSent = "message_sent" // outbound: ack to the sender
	TypeNewMessage  = "new_message"  // outbound: push to the receiver
	TypeStatus      = "status"       // outbound: presence broadcast
	TypeError       = "error"        // outbound: validation or protocol error
)

// WebSocket close codes.
const (
	CloseNormal      = 1000 // logout or server shutdown
	CloseUnknownUser = 1008 // missing or unknown user id at handshake
)

// Inbound is a client request frame.
type Inbound struct {
	Type       string `json:"type"`
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

// Outbound is a server event frame. Message is set for message_sent
// and new_message, the presence pair for status. Error frames reuse
// the "message" key for their text, matching the wire format, so they
// are built separately in Error.
type Outbound struct {
	Type     string          `json:"type"`
	Message  *models.Message `json:"message,omitempty"`
	UserID   int64           `json:"userId,omitempty"`
	IsOnline *bool           `json:"isOnline,omitempty"`
}

// Decode parses one inbound frame. Unknown types are rejected here so
// the router only ever sees the closed set.
func Decode(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, ErrInvalidFrame
	}
	if in.Type != TypeMessage {
		return nil, ErrInvalidFrame
	}
	return &in, nil
}

func MessageSent(msg *models.Message) []byte {
	return encode(&Outbound{Type: TypeMessageSent, Message: msg})
}

func NewMessage(msg *models.Message) []byte {
	return encode(&Outbound{Type: TypeNewMessage, Message: msg})
}

func Status(userID int64, isOnline bool) []byte {
	return encode(&Outbound{Type: TypeStatus, UserID: userID, IsOnline: &isOnline})
}

func Error(text string) []byte {
	b, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{TypeError, text})
	return b
}

func encode(out *Outbound) []byte {
	b, _ := json.Marshal(out)
	return b
}
