package server

import (
	"log"

	"talk2me/protocol"
)

// announcePresence notifies every online contact of userID that the
// user crossed an online/offline boundary. Called only on genuine
// transitions (first connection opened, last connection closed), never
// on intermediate multi-device changes. Failures here are logged and
// never block the announcing user's own setup or teardown.
func (s *Server) announcePresence(userID int64, online bool) {
	contacts, err := s.db.GetContacts(userID)
	if err != nil {
		log.Printf("Presence lookup for user %d failed: %v", userID, err)
		return
	}

	frame := protocol.Status(userID, online)
	for _, contact := range contacts {
		for _, c := range s.registry.ConnectionsFor(contact.ID) {
			s.deliver(c, frame)
		}
	}
}
