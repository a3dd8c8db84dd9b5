package db

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"talk2me/models"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows             = errors.New("no rows found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// Message ids must stay unique and strictly increasing under
	// concurrent sends; a single writer connection keeps inserts serialized.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			full_name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			bio TEXT NOT NULL DEFAULT '',
			profile_picture TEXT NOT NULL DEFAULT '',
			is_online INTEGER NOT NULL DEFAULT 0,
			last_active TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			contact_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(user_id, contact_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL REFERENCES users(id),
			receiver_id INTEGER NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// User methods

func (db *DB) CreateUser(username, password, fullName, email string) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO users (username, password, full_name, email, last_active) VALUES (?, ?, ?, ?, ?)",
		username, string(hashed), fullName, email, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:         id,
		Username:   username,
		Password:   string(hashed),
		FullName:   fullName,
		Email:      email,
		LastActive: now,
	}, nil
}

func (db *DB) GetUser(id int64) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, username, password, full_name, email, bio, profile_picture, is_online, last_active FROM users WHERE id = ?",
		id,
	))
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, username, password, full_name, email, bio, profile_picture, is_online, last_active FROM users WHERE username = ?",
		username,
	))
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var online int
	var lastActive string
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.FullName, &u.Email, &u.Bio, &u.ProfilePicture, &online, &lastActive)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	u.IsOnline = online != 0
	u.LastActive, _ = time.Parse(time.RFC3339, lastActive)
	return &u, nil
}

// Authenticate verifies the password against the stored bcrypt hash.
func (db *DB) Authenticate(username, password string) (*models.User, error) {
	user, err := db.GetUserByUsername(username)
	if err == ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ProfileUpdate carries the optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	FullName       *string
	Email          *string
	Bio            *string
	ProfilePicture *string
}

func (db *DB) UpdateUser(id int64, upd ProfileUpdate) (*models.User, error) {
	var sets []string
	var args []interface{}

	if upd.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, *upd.FullName)
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *upd.Bio)
	}
	if upd.ProfilePicture != nil {
		sets = append(sets, "profile_picture = ?")
		args = append(args, *upd.ProfilePicture)
	}

	if len(sets) > 0 {
		args = append(args, id)
		result, err := db.conn.Exec("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, ErrNoRows
		}
	}

	return db.GetUser(id)
}

// SetOnlineStatus flips the durable online flag; going offline also
// stamps last_active so contacts can show "last seen".
func (db *DB) SetOnlineStatus(id int64, online bool) error {
	var err error
	if online {
		_, err = db.conn.Exec("UPDATE users SET is_online = 1 WHERE id = ?", id)
	} else {
		now := time.Now().UTC().Format(time.RFC3339)
		_, err = db.conn.Exec("UPDATE users SET is_online = 0, last_active = ? WHERE id = ?", now, id)
	}
	return err
}

func (db *DB) UserExists(id int64) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) SearchUsers(query string) ([]models.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := db.conn.Query(
		`SELECT id, username, password, full_name, email, bio, profile_picture, is_online, last_active
		 FROM users
		 WHERE lower(username) LIKE ? OR lower(full_name) LIKE ? OR lower(email) LIKE ?
		 ORDER BY username`,
		pattern, pattern, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

// Contact methods

func (db *DB) GetContacts(userID int64) ([]models.User, error) {
	rows, err := db.conn.Query(
		`SELECT u.id, u.username, u.password, u.full_name, u.email, u.bio, u.profile_picture, u.is_online, u.last_active
		 FROM contacts c JOIN users u ON u.id = c.contact_id
		 WHERE c.user_id = ?
		 ORDER BY u.username`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		var online int
		var lastActive string
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.FullName, &u.Email, &u.Bio, &u.ProfilePicture, &online, &lastActive); err != nil {
			return nil, err
		}
		u.IsOnline = online != 0
		u.LastActive, _ = time.Parse(time.RFC3339, lastActive)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) AddContact(userID, contactID int64) error {
	_, err := db.conn.Exec("INSERT INTO contacts (user_id, contact_id) VALUES (?, ?)", userID, contactID)
	return err
}

func (db *DB) ContactExists(userID, contactID int64) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM contacts WHERE user_id = ? AND contact_id = ?", userID, contactID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) RemoveContact(userID, contactID int64) error {
	result, err := db.conn.Exec("DELETE FROM contacts WHERE user_id = ? AND contact_id = ?", userID, contactID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// Message methods

// CreateMessage persists a new message, assigning its id and timestamp.
func (db *DB) CreateMessage(senderID, receiverID int64, content string) (*models.Message, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO messages (sender_id, receiver_id, content, timestamp) VALUES (?, ?, ?, ?)",
		senderID, receiverID, content, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  now,
	}, nil
}

// GetMessages returns the full conversation between two users, oldest first.
func (db *DB) GetMessages(userID, contactID int64) ([]models.Message, error) {
	rows, err := db.conn.Query(
		`SELECT id, sender_id, receiver_id, content, timestamp, is_read
		 FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY id ASC`,
		userID, contactID, contactID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var read int
		var timestampStr string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &timestampStr, &read); err != nil {
			return nil, err
		}
		m.IsRead = read != 0
		m.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkMessagesAsRead flags everything senderID sent to receiverID as read.
// The flag only ever goes false to true.
func (db *DB) MarkMessagesAsRead(senderID, receiverID int64) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET is_read = 1 WHERE sender_id = ? AND receiver_id = ? AND is_read = 0",
		senderID, receiverID,
	)
	return err
}
