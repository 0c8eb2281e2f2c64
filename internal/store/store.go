// ABOUTME: Store interface and data types for conversation persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// for a participant pair that already has one
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation pairs exactly two participants and tracks recency of activity.
// The pair is unordered: ParticipantLow and ParticipantHigh hold the two
// identities in canonical (lexicographic) order so the UNIQUE index catches
// both argument orders.
type Conversation struct {
	ID              string
	ParticipantLow  string
	ParticipantHigh string
	CreatedAt       time.Time
	LastMessageAt   time.Time
}

// Involves reports whether participantID is one of the two parties.
func (c *Conversation) Involves(participantID string) bool {
	return participantID == c.ParticipantLow || participantID == c.ParticipantHigh
}

// Other returns the counterpart of participantID in the conversation.
// Returns an empty string if participantID is not a party.
func (c *Conversation) Other(participantID string) string {
	switch participantID {
	case c.ParticipantLow:
		return c.ParticipantHigh
	case c.ParticipantHigh:
		return c.ParticipantLow
	default:
		return ""
	}
}

// CanonicalPair returns the two participant identities in canonical order.
func CanonicalPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Message is one unit of text sent from one participant to the other.
// Immutable after append except for the IsRead flag, which only ever
// transitions false to true.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	SentAt         time.Time
	IsRead         bool
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByParticipants(ctx context.Context, a, b string) (*Conversation, error)
	ListConversationsForParticipant(ctx context.Context, participantID string, limit int) ([]*Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, int, error)
	ListMessagesSince(ctx context.Context, conversationID string, cursor time.Time) ([]*Message, error)
	CountUnread(ctx context.Context, participantID string) (int, error)
	MarkMessageRead(ctx context.Context, id string) (bool, error)

	// Close releases any resources held by the store
	Close() error
}
