package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"talk2me/db"
	"talk2me/models"

	"github.com/gorilla/mux"
)

const sessionName = "t2m-session"

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}

// sessionUser resolves the authenticated user id from the cookie
// session, or writes a 401 and reports false.
func (s *Server) sessionUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	session, _ := s.store.Get(r, sessionName)
	userID, ok := session.Values["userId"].(int64)
	if !ok || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values["userId"] = userID
	return session.Save(r, w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Password) < 6 || req.FullName == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Invalid registration data")
		return
	}

	if _, err := s.db.GetUserByUsername(req.Username); err == nil {
		writeError(w, http.StatusBadRequest, "Username already taken")
		return
	} else if err != db.ErrNoRows {
		log.Printf("Register lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	user, err := s.db.CreateUser(req.Username, req.Password, req.FullName, req.Email)
	if err != nil {
		log.Printf("Register error: %v", err)
		writeError(w, http.StatusBadRequest, "Failed to create user")
		return
	}

	if err := s.saveSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.db.Authenticate(req.Username, req.Password)
	if err == db.ErrInvalidCredentials {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		log.Printf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if err := s.db.SetOnlineStatus(user.ID, true); err != nil {
		log.Printf("Failed to mark user %d online: %v", user.ID, err)
	}
	user.IsOnline = true

	if err := s.saveSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	if err := s.db.SetOnlineStatus(userID, false); err != nil {
		log.Printf("Failed to mark user %d offline: %v", userID, err)
	}

	session, _ := s.store.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	user, err := s.db.GetUser(userID)
	if err == db.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("User lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	var upd db.ProfileUpdate
	var req struct {
		FullName       *string `json:"fullName"`
		Email          *string `json:"email"`
		Bio            *string `json:"bio"`
		ProfilePicture *string `json:"profilePicture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	upd.FullName, upd.Email, upd.Bio, upd.ProfilePicture = req.FullName, req.Email, req.Bio, req.ProfilePicture

	user, err := s.db.UpdateUser(userID, upd)
	if err == db.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("Update user error: %v", err)
		writeError(w, http.StatusBadRequest, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	contacts, err := s.db.GetContacts(userID)
	if err != nil {
		log.Printf("Contacts error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if contacts == nil {
		contacts = []models.User{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

// handleAddContact adds the relationship in both directions so the
// presence audience stays symmetric.
func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	var req struct {
		ContactUsername string `json:"contactUsername"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactUsername == "" {
		writeError(w, http.StatusBadRequest, "Contact username is required")
		return
	}

	contact, err := s.db.GetUserByUsername(req.ContactUsername)
	if err == db.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("Add contact lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if contact.ID == userID {
		writeError(w, http.StatusBadRequest, "Cannot add yourself as a contact")
		return
	}

	exists, err := s.db.ContactExists(userID, contact.ID)
	if err != nil {
		log.Printf("Add contact error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "Already in contacts")
		return
	}

	if err := s.db.AddContact(userID, contact.ID); err != nil {
		log.Printf("Add contact error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if err := s.db.AddContact(contact.ID, userID); err != nil {
		log.Printf("Add reverse contact error: %v", err)
	}

	writeJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	contactID, err := strconv.ParseInt(mux.Vars(r)["contactId"], 10, 64)
	if err != nil || contactID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid contact ID")
		return
	}

	if err := s.db.RemoveContact(userID, contactID); err != nil {
		if err == db.ErrNoRows {
			writeError(w, http.StatusNotFound, "Contact not found")
		} else {
			log.Printf("Remove contact error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}
	if err := s.db.RemoveContact(contactID, userID); err != nil && err != db.ErrNoRows {
		log.Printf("Remove reverse contact error: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Contact removed successfully"})
}

// handleMessages returns the conversation with a contact and, as a
// side effect of reading it, marks the peer's messages to the viewer
// as read.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	contactID, err := strconv.ParseInt(mux.Vars(r)["contactId"], 10, 64)
	if err != nil || contactID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid contact ID")
		return
	}

	messages, err := s.db.GetMessages(userID, contactID)
	if err != nil {
		log.Printf("Messages error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if err := s.db.MarkMessagesAsRead(contactID, userID); err != nil {
		log.Printf("Mark read error: %v", err)
	}

	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		writeJSON(w, http.StatusOK, []models.User{})
		return
	}

	results, err := s.db.SearchUsers(query)
	if err != nil {
		log.Printf("Search error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	filtered := make([]models.User, 0, len(results))
	for _, u := range results {
		if u.ID != userID {
			filtered = append(filtered, u)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}
