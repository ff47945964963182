package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the username has no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the username already has an account.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrChatNotFound indicates the chat does not exist.
	ErrChatNotFound = errors.New("chat not found")
	// ErrChatNameTaken indicates a chat with that name already exists.
	ErrChatNameTaken = errors.New("chat name already taken")
	// ErrNotMember indicates the user has no membership row for the chat.
	ErrNotMember = errors.New("user is not a member of this chat")
	// ErrAlreadyMember indicates the invitee already has a membership row.
	ErrAlreadyMember = errors.New("user is already a member of this chat")
)

// AuthStatus is the outcome of an authentication attempt
type AuthStatus int

const (
	AuthSuccess AuthStatus = iota
	AuthInvalidPassword
	AuthNotExists
)

// DB wraps the SQLite database connection.
//
// Every exported operation acquires one exclusive mutex for its full statement
// sequence, so callers get linearizable per-operation semantics without any
// cross-operation isolation beyond that.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

// User represents an account row mirrored into the in-memory directory
type User struct {
	ID       int64
	Username string
}

// Chat represents a chat row
type Chat struct {
	ID        int64
	Name      string
	CreatedAt int64 // Unix timestamp in seconds
	AdminID   int64
}

// Membership represents one (chat, user) pair with its visibility horizon
type Membership struct {
	ChatID      int64
	UserID      int64
	AllowedFrom int64 // Unix timestamp in seconds; messages before this are hidden
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// All access is serialized behind db.mu, one connection is enough
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for cheaper fsync behavior
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait and retry instead of failing with SQLITE_BUSY
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys (SQLite has them disabled by default)
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{
		conn: conn,
		now:  time.Now,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- User table
CREATE TABLE IF NOT EXISTS User (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);

-- Chat table
CREATE TABLE IF NOT EXISTS Chat (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	admin_id INTEGER NOT NULL,
	FOREIGN KEY (admin_id) REFERENCES User(id)
);

-- Membership table, one row per (chat, user) pair
CREATE TABLE IF NOT EXISTS Membership (
	chat_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	allowed_from INTEGER NOT NULL,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES Chat(id),
	FOREIGN KEY (user_id) REFERENCES User(id)
);

-- Message table, append-only
CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	sender_id INTEGER NOT NULL,
	sent_at INTEGER NOT NULL,
	body TEXT NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES Chat(id),
	FOREIGN KEY (sender_id) REFERENCES User(id)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_messages_chat ON Message(chat_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_memberships_user ON Membership(user_id);
`

	_, err := db.conn.Exec(schema)
	return err
}

// Authenticate checks a password against the stored hash for a username
func (db *DB) Authenticate(username, password string) (AuthStatus, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var passwordHash string
	err := db.conn.QueryRow(`SELECT password_hash FROM User WHERE username = ?`, username).Scan(&passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthNotExists, nil
	}
	if err != nil {
		return AuthNotExists, err
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return AuthInvalidPassword, nil
	}

	return AuthSuccess, nil
}

// CreateUser inserts a credential row and returns the new user id
func (db *DB) CreateUser(username, password string) (int64, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.Exec(`
		INSERT INTO User (username, password_hash) VALUES (?, ?)
	`, username, string(passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}

	return result.LastInsertId()
}

// GetUserID resolves a username to its id
func (db *DB) GetUserID(username string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var id int64
	err := db.conn.QueryRow(`SELECT id FROM User WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetAllUsers returns every account; used once at startup to seed the
// user directory
func (db *DB) GetAllUsers() ([]User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`SELECT id, username FROM User ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// CreateChat creates a chat and its full initial membership set atomically.
// The admin and every member get allowed_from = the chat's creation time.
// A name collision fails the whole operation with no rows inserted.
func (db *DB) CreateChat(name string, adminID int64, memberIDs []int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := db.now().Unix()

	result, err := tx.Exec(`
		INSERT INTO Chat (name, created_at, admin_id) VALUES (?, ?, ?)
	`, name, createdAt, adminID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrChatNameTaken
		}
		return err
	}

	chatID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO Membership (chat_id, user_id, allowed_from) VALUES (?, ?, ?)
	`, chatID, adminID, createdAt); err != nil {
		return err
	}

	for _, memberID := range memberIDs {
		if memberID == adminID {
			continue
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO Membership (chat_id, user_id, allowed_from) VALUES (?, ?, ?)
		`, chatID, memberID, createdAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetChatsByTime returns names of chats the user belongs to that have had
// activity (message, membership change, or creation) at or after since.
// Results are ordered by activity time, ties broken by name ascending.
func (db *DB) GetChatsByTime(userID int64, since time.Time) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`
		SELECT name FROM (
			SELECT c.name AS name,
			       MAX(c.created_at,
			           COALESCE((SELECT MAX(m.sent_at) FROM Message m WHERE m.chat_id = c.id), 0),
			           COALESCE((SELECT MAX(b.allowed_from) FROM Membership b WHERE b.chat_id = c.id), 0)) AS activity
			FROM Chat c
			INNER JOIN Membership mem ON mem.chat_id = c.id
			WHERE mem.user_id = ?
		)
		WHERE activity >= ?
		ORDER BY activity ASC, name ASC
	`, userID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// CreateMessage appends a message to a chat. Fails if the chat does not
// exist or the sender has no membership row.
func (db *DB) CreateMessage(chatName string, senderID int64, sentAt time.Time, body string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, err := db.getChatLocked(chatName)
	if err != nil {
		return err
	}

	if _, err := db.getMembershipLocked(chat.ID, senderID); err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		INSERT INTO Message (chat_id, sender_id, sent_at, body) VALUES (?, ?, ?, ?)
	`, chat.ID, senderID, sentAt.Unix(), body)
	return err
}

// GetChatMessages returns the message bodies visible to the user: those with
// sent_at at or after the user's allowed_from horizon, oldest first, ties
// broken by insertion order.
func (db *DB) GetChatMessages(chatName string, userID int64) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, err := db.getChatLocked(chatName)
	if err != nil {
		return nil, err
	}

	membership, err := db.getMembershipLocked(chat.ID, userID)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`
		SELECT body FROM Message
		WHERE chat_id = ? AND sent_at >= ?
		ORDER BY sent_at ASC, id ASC
	`, chat.ID, membership.AllowedFrom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}

	return bodies, rows.Err()
}

// InviteUserToChat adds a membership row for the invitee. With shareHistory
// the horizon is the chat's creation time, otherwise the invitation time.
// Re-inviting an existing member fails without touching the existing row.
func (db *DB) InviteUserToChat(chatName string, invitorID, inviteeID int64, shareHistory bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, err := db.getChatLocked(chatName)
	if err != nil {
		return err
	}

	var exists bool
	if err := db.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM User WHERE id = ?)`, inviteeID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}

	if _, err := db.getMembershipLocked(chat.ID, inviteeID); err == nil {
		return ErrAlreadyMember
	} else if !errors.Is(err, ErrNotMember) {
		return err
	}

	allowedFrom := chat.CreatedAt
	if !shareHistory {
		allowedFrom = db.now().Unix()
	}

	_, err = db.conn.Exec(`
		INSERT INTO Membership (chat_id, user_id, allowed_from) VALUES (?, ?, ?)
	`, chat.ID, inviteeID, allowedFrom)
	return err
}

// GetMembership returns the membership row for a (chat, user) pair
func (db *DB) GetMembership(chatName string, userID int64) (*Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, err := db.getChatLocked(chatName)
	if err != nil {
		return nil, err
	}

	return db.getMembershipLocked(chat.ID, userID)
}

// GetChat returns a chat by name
func (db *DB) GetChat(name string) (*Chat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.getChatLocked(name)
}

// getChatLocked resolves a chat by name; db.mu must be held
func (db *DB) getChatLocked(name string) (*Chat, error) {
	chat := &Chat{}
	err := db.conn.QueryRow(`
		SELECT id, name, created_at, admin_id FROM Chat WHERE name = ?
	`, name).Scan(&chat.ID, &chat.Name, &chat.CreatedAt, &chat.AdminID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// getMembershipLocked resolves a membership row; db.mu must be held
func (db *DB) getMembershipLocked(chatID, userID int64) (*Membership, error) {
	m := &Membership{}
	err := db.conn.QueryRow(`
		SELECT chat_id, user_id, allowed_from FROM Membership WHERE chat_id = ? AND user_id = ?
	`, chatID, userID).Scan(&m.ChatID, &m.UserID, &m.AllowedFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
