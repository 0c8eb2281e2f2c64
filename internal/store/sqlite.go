// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers, avoiding SQLITE_BUSY under
	// concurrent appends.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are stored as UTC unix nanoseconds: reconciliation cursors
// compare strictly-greater-than, which needs more precision than
// second-resolution text timestamps can give.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_low TEXT NOT NULL,
			participant_high TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_message_at INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations(participant_low, participant_high);

		CREATE INDEX IF NOT EXISTS idx_conversations_low
			ON conversations(participant_low, last_message_at);

		CREATE INDEX IF NOT EXISTS idx_conversations_high
			ON conversations(participant_high, last_message_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
			ON messages(conversation_id, sent_at);

		CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread
			ON messages(receiver_id, is_read);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateConversation creates a new conversation row.
// The participant pair is stored in canonical order regardless of how the
// caller populated the struct. If a conversation already exists for the
// pair, it returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	low, high := CanonicalPair(conv.ParticipantLow, conv.ParticipantHigh)
	conv.ParticipantLow, conv.ParticipantHigh = low, high

	query := `
		INSERT INTO conversations (id, participant_low, participant_high, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		low,
		high,
		conv.CreatedAt.UTC().UnixNano(),
		conv.LastMessageAt.UTC().UnixNano(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "low", low, "high", high)
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, participant_low, participant_high, created_at, last_message_at
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// GetConversationByParticipants retrieves the conversation for an unordered
// participant pair. Argument order does not matter.
// Returns ErrNotFound if no conversation exists for the pair.
func (s *SQLiteStore) GetConversationByParticipants(ctx context.Context, a, b string) (*Conversation, error) {
	low, high := CanonicalPair(a, b)

	query := `
		SELECT id, participant_low, participant_high, created_at, last_message_at
		FROM conversations
		WHERE participant_low = ? AND participant_high = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, low, high))
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var createdAt, lastMessageAt int64

	err := row.Scan(
		&conv.ID,
		&conv.ParticipantLow,
		&conv.ParticipantHigh,
		&createdAt,
		&lastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.CreatedAt = time.Unix(0, createdAt).UTC()
	conv.LastMessageAt = time.Unix(0, lastMessageAt).UTC()
	return &conv, nil
}

// ListConversationsForParticipant retrieves the conversations a participant
// belongs to, ordered by most recent activity. If limit is 0 or negative, a
// default limit of 100 is used.
func (s *SQLiteStore) ListConversationsForParticipant(ctx context.Context, participantID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, participant_low, participant_high, created_at, last_message_at
		FROM conversations
		WHERE participant_low = ? OR participant_high = ?
		ORDER BY last_message_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, participantID, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var createdAt, lastMessageAt int64

		if err := rows.Scan(
			&conv.ID,
			&conv.ParticipantLow,
			&conv.ParticipantHigh,
			&createdAt,
			&lastMessageAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		conv.CreatedAt = time.Unix(0, createdAt).UTC()
		conv.LastMessageAt = time.Unix(0, lastMessageAt).UTC()
		convs = append(convs, &conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return convs, nil
}

// AppendMessage persists a message and bumps the owning conversation's
// last_message_at to the message's sent_at inside a single transaction, so
// concurrent appends on the same conversation cannot lose the bump.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	sentAt := msg.SentAt.UTC().UnixNano()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, sent_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		sentAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	// MAX guards against a concurrent append that committed a newer
	// timestamp between our clock read and this statement.
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = MAX(last_message_at, ?)
		WHERE id = ?
	`, sentAt, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("bumping last_message_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, sent_at, is_read
		FROM messages
		WHERE id = ?
	`

	var msg Message
	var sentAt int64
	var isRead int

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&sentAt,
		&isRead,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.SentAt = time.Unix(0, sentAt).UTC()
	msg.IsRead = isRead != 0
	return &msg, nil
}

// ListMessagesPage returns one page of a conversation's messages plus the
// total message count. Page 1 holds the newest messages; within a page
// messages are in chronological order (oldest first) for display. We query
// newest-first for the page window, then reverse.
func (s *SQLiteStore) ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, sent_at, is_read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	messages, err := s.queryMessages(ctx, query, conversationID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

// ListMessagesSince returns messages strictly newer than the cursor
// timestamp, in chronological order. Repeated calls with the same cursor
// return the same result until new messages are appended.
func (s *SQLiteStore) ListMessagesSince(ctx context.Context, conversationID string, cursor time.Time) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, sent_at, is_read
		FROM messages
		WHERE conversation_id = ? AND sent_at > ?
		ORDER BY sent_at ASC, rowid ASC
	`
	return s.queryMessages(ctx, query, conversationID, cursor.UTC().UnixNano())
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var sentAt int64
		var isRead int

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Content,
			&sentAt,
			&isRead,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.SentAt = time.Unix(0, sentAt).UTC()
		msg.IsRead = isRead != 0
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// CountUnread returns the number of unread messages addressed to the
// participant, across all conversations.
func (s *SQLiteStore) CountUnread(ctx context.Context, participantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`,
		participantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// MarkMessageRead flips a message's is_read flag to true. Returns whether
// the flag changed: false means the message was already read. The WHERE
// clause makes the unread-to-read transition one-way and idempotent.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE id = ? AND is_read = 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("marking message read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either already read or missing - disambiguate
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, ErrNotFound
		}
		if err != nil {
			return false, fmt.Errorf("checking message existence: %w", err)
		}
		return false, nil
	}

	s.logger.Debug("marked message read", "id", id)
	return true, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
