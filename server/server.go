package server

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"talk2me/db"
	"talk2me/protocol"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
)

type Server struct {
	db       *db.DB
	config   *ServerConfig
	registry *Registry
	store    *sessions.CookieStore
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	// presenceMu keeps the announcement order identical to the
	// transition order when opens and closes of one user race.
	presenceMu sync.Mutex
}

type ServerConfig struct {
	Addr             string
	SessionSecret    string
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
}

func New(database *db.DB, config *ServerConfig) *Server {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.SendBuffer == 0 {
		config.SendBuffer = 32
	}

	s := &Server{
		db:       database,
		config:   config,
		registry: NewRegistry(),
		store:    sessions.NewCookieStore([]byte(config.SessionSecret)),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
	s.httpSrv = &http.Server{Addr: config.Addr, Handler: s.Handler()}
	return s
}

// Handler builds the full route table: the WebSocket endpoint plus the
// REST surface for accounts, contacts, history and search.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/user", s.handleCurrentUser).Methods("GET")
	api.HandleFunc("/user", s.handleUpdateUser).Methods("PATCH")
	api.HandleFunc("/contacts", s.handleListContacts).Methods("GET")
	api.HandleFunc("/contacts", s.handleAddContact).Methods("POST")
	api.HandleFunc("/contacts/{contactId}", s.handleRemoveContact).Methods("DELETE")
	api.HandleFunc("/messages/{contactId}", s.handleMessages).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")

	return r
}

func (s *Server) Start() error {
	log.Printf("talk2me server listening on %s", s.config.Addr)
	return s.httpSrv.ListenAndServe()
}

// handleWS drives the lifecycle of one connection: handshake with the
// identity supplied as a query parameter, registration with presence
// announcement on the first connection, the read loop, and teardown
// with an offline announcement on the last connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if userID <= 0 {
		closeWithCode(ws, protocol.CloseUnknownUser, "User ID is required")
		return
	}

	if _, err := s.db.GetUser(userID); err != nil {
		if err != db.ErrNoRows {
			log.Printf("Handshake lookup failed for user %d: %v", userID, err)
		}
		closeWithCode(ws, protocol.CloseUnknownUser, "User not found")
		return
	}

	conn := newConn(userID, ws, s.config.SendBuffer)
	go conn.writePump(s.config.WriteTimeout)

	s.attach(conn)
	log.Printf("Connection %s opened for user %d from %s", conn.ID, userID, r.RemoteAddr)

	defer func() {
		conn.close(protocol.CloseNormal, "")
		s.detach(conn)
		log.Printf("Connection %s closed for user %d", conn.ID, userID)
	}()

	s.readLoop(conn)
}

// attach registers the connection and, on the user's 0->1 boundary,
// flips the durable flag and announces. Transition detection and the
// announcement happen under one lock so contacts never observe an
// online/offline pair out of order.
func (s *Server) attach(c *Conn) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	if first := s.registry.Register(c); first {
		if err := s.db.SetOnlineStatus(c.UserID, true); err != nil {
			log.Printf("Failed to mark user %d online: %v", c.UserID, err)
		}
		s.announcePresence(c.UserID, true)
	}
}

// detach is the teardown counterpart of attach.
func (s *Server) detach(c *Conn) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	if last := s.registry.Deregister(c); last {
		if err := s.db.SetOnlineStatus(c.UserID, false); err != nil {
			log.Printf("Failed to mark user %d offline: %v", c.UserID, err)
		}
		s.announcePresence(c.UserID, false)
	}
}

func (s *Server) readLoop(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		in, err := protocol.Decode(data)
		if err != nil {
			s.deliver(c, protocol.Error("Invalid message format"))
			continue
		}

		s.handleSend(c, in)
	}
}

// deliver pushes a frame to one connection. A failed push means the
// peer is dead or hopelessly backed up: the connection is closed and
// its session teardown takes care of deregistration.
func (s *Server) deliver(c *Conn, frame []byte) {
	if !c.push(frame) {
		log.Printf("Delivery to connection %s of user %d failed, closing", c.ID, c.UserID)
		c.close(protocol.CloseNormal, "delivery failure")
	}
}

func closeWithCode(ws *websocket.Conn, code int, reason string) {
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	ws.Close()
}

// Shutdown closes every live connection with a normal close frame and
// flips the owners' durable online flags.
func (s *Server) Shutdown(reason string) {
	for _, c := range s.registry.All() {
		c.close(protocol.CloseNormal, reason)
		if last := s.registry.Deregister(c); last {
			if err := s.db.SetOnlineStatus(c.UserID, false); err != nil {
				log.Printf("Failed to mark user %d offline: %v", c.UserID, err)
			}
		}
	}

	s.httpSrv.Close()
}

// Stats returns server statistics as a formatted string.
func (s *Server) Stats() string {
	connections, users := s.registry.Counts()
	return "connections=" + strconv.Itoa(connections) + ",users=" + strconv.Itoa(users)
}
