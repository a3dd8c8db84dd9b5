package server

import (
	"log"
	"strings"

	"talk2me/protocol"
)

// handleSend validates, persists and delivers one send request. The
// outcome always goes back to the connection that issued the request:
// the ack on success, an error frame otherwise. Other devices of the
// same sender are deliberately not acked. The receiver, if online,
// gets the message pushed to every live connection.
func (s *Server) handleSend(c *Conn, in *protocol.Inbound) {
	content := strings.TrimSpace(in.Content)
	if in.ReceiverID <= 0 || content == "" {
		s.deliver(c, protocol.Error("Invalid message format"))
		return
	}

	exists, err := s.db.UserExists(in.ReceiverID)
	if err != nil {
		log.Printf("Recipient lookup failed: %v", err)
		s.deliver(c, protocol.Error("Internal error"))
		return
	}
	if !exists {
		s.deliver(c, protocol.Error("Recipient not found"))
		return
	}

	msg, err := s.db.CreateMessage(c.UserID, in.ReceiverID, content)
	if err != nil {
		log.Printf("Failed to persist message from %d to %d: %v", c.UserID, in.ReceiverID, err)
		s.deliver(c, protocol.Error("Internal error"))
		return
	}

	s.deliver(c, protocol.MessageSent(msg))

	// Offline receivers get nothing pushed; the message waits in the
	// store until they next fetch the conversation.
	for _, rc := range s.registry.ConnectionsFor(in.ReceiverID) {
		s.deliver(rc, protocol.NewMessage(msg))
	}
}
