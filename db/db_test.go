package db

import (
	"os"
	"sync"
	"testing"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	os.Remove(tmpfile.Name())

	database, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tmpfile.Name())
	}
	return database, cleanup
}

func seedUser(t *testing.T, database *DB, username string) int64 {
	t.Helper()
	user, err := database.CreateUser(username, "password123", "Test "+username, username+"@example.com")
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user.ID
}

func TestAuthenticate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	seedUser(t, database, "alice")

	user, err := database.Authenticate("alice", "password123")
	if err != nil {
		t.Fatalf("Expected successful authentication, got %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Expected alice, got %s", user.Username)
	}

	if _, err := database.Authenticate("alice", "wrongpass"); err != ErrInvalidCredentials {
		t.Errorf("Expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := database.Authenticate("nobody", "password123"); err != ErrInvalidCredentials {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	seedUser(t, database, "alice")
	if _, err := database.CreateUser("alice", "password123", "Clone", "clone@example.com"); err == nil {
		t.Errorf("Expected error for duplicate username")
	}
}

// TestMessageIDsMonotonic: ids stay unique and strictly increasing
// even when many senders persist messages concurrently.
func TestMessageIDsMonotonic(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")

	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	ids := make(chan int64, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				msg, err := database.CreateMessage(alice, bob, "msg")
				if err != nil {
					t.Errorf("CreateMessage failed: %v", err)
					return
				}
				ids <- msg.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate message id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("Expected %d messages, got %d", workers*perWorker, len(seen))
	}

	// Stored order follows id order.
	messages, err := database.GetMessages(alice, bob)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].ID <= messages[i-1].ID {
			t.Fatalf("Ids not strictly increasing: %d then %d", messages[i-1].ID, messages[i].ID)
		}
	}
}

func TestMarkMessagesAsReadOneWay(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")

	if _, err := database.CreateMessage(bob, alice, "to alice"); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if _, err := database.CreateMessage(alice, bob, "to bob"); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	if err := database.MarkMessagesAsRead(bob, alice); err != nil {
		t.Fatalf("MarkMessagesAsRead failed: %v", err)
	}

	messages, err := database.GetMessages(alice, bob)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	for _, m := range messages {
		if m.SenderID == bob && !m.IsRead {
			t.Errorf("Expected bob's message marked read: %+v", m)
		}
		if m.SenderID == alice && m.IsRead {
			t.Errorf("Alice's message must stay unread: %+v", m)
		}
	}

	// Marking again never reverts anything.
	if err := database.MarkMessagesAsRead(bob, alice); err != nil {
		t.Fatalf("MarkMessagesAsRead failed: %v", err)
	}
	messages, err = database.GetMessages(alice, bob)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if !messages[0].IsRead {
		t.Errorf("Read flag reverted: %+v", messages[0])
	}
}

func TestContacts(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")

	if err := database.AddContact(alice, bob); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := database.AddContact(alice, bob); err == nil {
		t.Errorf("Expected error for duplicate contact pair")
	}

	contacts, err := database.GetContacts(alice)
	if err != nil {
		t.Fatalf("GetContacts failed: %v", err)
	}
	if len(contacts) != 1 || contacts[0].ID != bob {
		t.Errorf("Expected bob in alice's contacts, got %+v", contacts)
	}

	// One-directional unless added both ways.
	contacts, err = database.GetContacts(bob)
	if err != nil {
		t.Fatalf("GetContacts failed: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("Expected no contacts for bob, got %+v", contacts)
	}

	if err := database.RemoveContact(alice, bob); err != nil {
		t.Fatalf("RemoveContact failed: %v", err)
	}
	if err := database.RemoveContact(alice, bob); err != ErrNoRows {
		t.Errorf("Expected ErrNoRows removing a missing contact, got %v", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	alice := seedUser(t, database, "alice")

	bio := "new bio"
	user, err := database.UpdateUser(alice, ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if user.Bio != "new bio" {
		t.Errorf("Expected bio updated, got %q", user.Bio)
	}
	if user.FullName != "Test alice" || user.Email != "alice@example.com" {
		t.Errorf("Untouched fields changed: %+v", user)
	}

	if _, err := database.UpdateUser(9999, ProfileUpdate{Bio: &bio}); err != ErrNoRows {
		t.Errorf("Expected ErrNoRows for unknown user, got %v", err)
	}
}

func TestSearchUsers(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	seedUser(t, database, "alice")
	seedUser(t, database, "alicia")
	seedUser(t, database, "bob")

	results, err := database.SearchUsers("ALI")
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 matches for 'ALI', got %d", len(results))
	}

	// Matches on email too.
	results, err = database.SearchUsers("bob@example")
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(results) != 1 || results[0].Username != "bob" {
		t.Errorf("Expected bob by email, got %+v", results)
	}
}
