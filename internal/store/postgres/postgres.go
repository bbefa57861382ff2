package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vovakirdan/lobbychat/internal/store"
)

// foreignKeyViolation is the SQLSTATE for a failed REFERENCES check.
const foreignKeyViolation = "23503"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                SERIAL PRIMARY KEY,
	username          VARCHAR(50) NOT NULL,
	tripcode          VARCHAR(16) NOT NULL DEFAULT '',
	full_display_name VARCHAR(67) NOT NULL,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	message_count     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (username, tripcode)
);

CREATE TABLE IF NOT EXISTS messages (
	id        SERIAL PRIMARY KEY,
	username  VARCHAR(67) NOT NULL,
	message   TEXT NOT NULL,
	user_id   INTEGER REFERENCES users(id),
	recipient VARCHAR(67),
	timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);

CREATE TABLE IF NOT EXISTS read_receipts (
	id              SERIAL PRIMARY KEY,
	message_id      INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	reader_username VARCHAR(67) NOT NULL,
	read_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (message_id, reader_username)
);

CREATE INDEX IF NOT EXISTS idx_read_receipts_message_id ON read_receipts(message_id);
`

// PostgresStore implements store.Store for PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// New connects to PostgreSQL using dsn and applies the schema.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateOrGetUser returns the user keyed by (username, tripcode), creating it when absent.
func (s *PostgresStore) CreateOrGetUser(ctx context.Context, username, tripcode, displayName string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, tripcode, full_display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (username, tripcode) DO UPDATE SET last_seen = CURRENT_TIMESTAMP
		RETURNING id, username, tripcode, full_display_name, message_count, created_at, last_seen
	`, username, tripcode, displayName)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, tripcode, full_display_name, message_count, created_at, last_seen
		FROM users
		WHERE id = $1
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

// SaveMessage persists a message and bumps the author's message counter.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (username, message, user_id, recipient, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, msg.Author, msg.Body, msg.UserID, msg.Recipient, msg.CreatedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if msg.UserID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET message_count = message_count + 1 WHERE id = $1`, *msg.UserID); err != nil {
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
func (s *PostgresStore) RecentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, message, user_id, timestamp
		FROM messages
		WHERE recipient IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
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

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead records a read receipt; duplicates are ignored.
func (s *PostgresStore) MarkRead(ctx context.Context, messageID int64, reader string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_receipts (message_id, reader_username)
		VALUES ($1, $2)
		ON CONFLICT (message_id, reader_username) DO NOTHING
	`, messageID, reader)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert read receipt: %w", err)
	}
	return nil
}

// ListReceipts groups readers by message id.
func (s *PostgresStore) ListReceipts(ctx context.Context, messageIDs []int64) (map[int64][]string, error) {
	receipts := make(map[int64][]string)
	if len(messageIDs) == 0 {
		return receipts, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, reader_username
		FROM read_receipts
		WHERE message_id = ANY($1)
		ORDER BY id
	`, pq.Array(messageIDs))
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
