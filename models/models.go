package models

import "time"

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Password       string    `json:"-"` // bcrypt hash, never serialized
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	Bio            string    `json:"bio,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	IsOnline       bool      `json:"isOnline"`
	LastActive     time.Time `json:"lastActive"`
}

type Contact struct {
	ID        int64
	UserID    int64
	ContactID int64
}

type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

// PresenceEvent is ephemeral: broadcast to contacts, never persisted.
type PresenceEvent struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}
