package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/lobbychat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	username          TEXT NOT NULL,
	tripcode          TEXT NOT NULL DEFAULT '',
	full_display_name TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	message_count     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (username, tripcode)
);

CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	username  TEXT NOT NULL,
	message   TEXT NOT NULL,
	user_id   INTEGER REFERENCES users(id),
	recipient TEXT,
	timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);

CREATE TABLE IF NOT EXISTS read_receipts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id      INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	reader_username TEXT NOT NULL,
	read_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (message_id, reader_username)
);

CREATE INDEX IF NOT EXISTS idx_read_receipts_message_id ON read_receipts(message_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of the built-in schema.
// Useful for tests that need a custom layout.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func withPragmas(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateOrGetUser returns the user keyed by (username, tripcode), creating it when absent.
func (s *SQLiteStore) CreateOrGetUser(ctx context.Context, username, tripcode, displayName string) (*store.User, error) {
	query := `
		INSERT INTO users (username, tripcode, full_display_name)
		VALUES (?, ?, ?)
		ON CONFLICT (username, tripcode) DO UPDATE SET last_seen = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, username, tripcode, displayName); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, tripcode, full_display_name, message_count, created_at, last_seen
		FROM users
		WHERE username = ? AND tripcode = ?
	`, username, tripcode)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, tripcode, full_display_name, message_count, created_at, last_seen
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Tripcode,
		&user.DisplayName,
		&user.MessageCount,
		&user.CreatedAt,
		&user.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and bumps the author's message counter.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (username, message, user_id, recipient, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, msg.Author, msg.Body, msg.UserID, msg.Recipient, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if msg.UserID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET message_count = message_count + 1 WHERE id = ?`, *msg.UserID); err != nil {
			return fmt.Errorf("increment message count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	msg.ID = id
	return nil
}

// RecentMessages returns the latest public messages, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, message, user_id, timestamp
		FROM messages
		WHERE recipient IS NULL
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg    store.Message
			userID sql.NullInt64
		)
		if err := rows.Scan(&msg.ID, &msg.Author, &msg.Body, &userID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			msg.UserID = &id
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ==== ReceiptStore implementation ====

// MarkRead records a read receipt; duplicates are ignored.
func (s *SQLiteStore) MarkRead(ctx context.Context, messageID int64, reader string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_receipts (message_id, reader_username)
		VALUES (?, ?)
		ON CONFLICT (message_id, reader_username) DO NOTHING
	`, messageID, reader)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert read receipt: %w", err)
	}
	return nil
}

// ListReceipts groups readers by message id.
func (s *SQLiteStore) ListReceipts(ctx context.Context, messageIDs []int64) (map[int64][]string, error) {
	receipts := make(map[int64][]string)
	if len(messageIDs) == 0 {
		return receipts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]interface{}, 0, len(messageIDs))
	for _, id := range messageIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, reader_username FROM read_receipts WHERE message_id IN (`+placeholders+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query read receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			reader    string
		)
		if err := rows.Scan(&messageID, &reader); err != nil {
			return nil, fmt.Errorf("scan read receipt: %w", err)
		}
		receipts[messageID] = append(receipts[messageID], reader)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read receipts: %w", err)
	}
	return receipts, nil
}
