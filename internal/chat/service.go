// ABOUTME: Service is the central layer for message persistence and delivery
// ABOUTME: All sends flow through here - the store is the source of truth, push is best-effort

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/apperr"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetConversationByParticipants(ctx context.Context, a, b string) (*store.Conversation, error)
	ListConversationsForParticipant(ctx context.Context, participantID string, limit int) ([]*store.Conversation, error)

	AppendMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]*store.Message, int, error)
	ListMessagesSince(ctx context.Context, conversationID string, cursor time.Time) ([]*store.Message, error)
	CountUnread(ctx context.Context, participantID string) (int, error)
	MarkMessageRead(ctx context.Context, id string) (bool, error)
}

// Notifier pushes events to live sessions. Implementations must be
// non-blocking: a failed or slow push is the notifier's problem, never the
// sender's.
type Notifier interface {
	NotifyNewMessage(msg *store.Message)
	NotifyRead(messageID, conversationID, originalSenderID string)
}

// Paging bounds for GetMessages.
const (
	minPageSize = 1
	maxPageSize = 100
)

// Service coordinates conversation operations: sending, history paging,
// read receipts, unread counts, and cursor-based reconciliation.
type Service struct {
	store    ConversationStore
	notifier Notifier
	logger   *slog.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewService creates a chat service. Pass nil logger for default.
// notifier may be nil, in which case no live push happens (reconciliation
// still works - the store is the source of truth).
func NewService(st ConversationStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logger.With("component", "chat"),
		now:      time.Now,
	}
}

// ConversationSummary is one row of a participant's conversation list view.
type ConversationSummary struct {
	ConversationID     string
	OtherParticipantID string
	LastMessageAt      time.Time
}

// Send validates, persists, and fans out one message.
//
// Key principle: persist first, then push. The message is committed to the
// store before any live delivery is attempted, so a client that receives a
// push can immediately reconcile and will see at least that message.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (*store.Message, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if senderID == "" {
		return nil, apperr.Invalid("sender is required")
	}
	if receiverID == "" {
		return nil, apperr.Invalid("receiver is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Invalid("content is required")
	}
	if senderID == receiverID {
		return nil, apperr.Invalid("sender and receiver must differ")
	}

	conv, err := s.GetOrCreateConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation: %w", err)
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		SentAt:         s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	s.logger.Debug("message persisted",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"sender", senderID)

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(msg)
	}

	return msg, nil
}

// GetMessages returns one page of the conversation between the caller and
// the other participant, plus the total message count. Page 1 holds the
// newest messages; within a page messages are chronological. A pair that
// never exchanged messages yields an empty page and zero total.
func (s *Service) GetMessages(ctx context.Context, callerID, otherID string, page, pageSize int) ([]*store.Message, int, error) {
	if callerID == "" || otherID == "" {
		return nil, 0, apperr.Invalid("both participants are required")
	}
	if page < 1 {
		return nil, 0, apperr.Invalid("page must be at least 1")
	}
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	conv, err := s.store.GetConversationByParticipants(ctx, callerID, otherID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("looking up conversation: %w", err)
	}
	if err := s.Authorize(callerID, conv); err != nil {
		return nil, 0, err
	}

	messages, total, err := s.store.ListMessagesPage(ctx, conv.ID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("paging messages: %w", err)
	}
	return messages, total, nil
}

// Since returns the messages between the caller and the other participant
// that are strictly newer than the cursor, in chronological order. Clients
// call this on an interval as the durability backstop for live push, and
// advance their cursor to the sent-at of the last message processed.
func (s *Service) Since(ctx context.Context, callerID, otherID string, cursor time.Time) ([]*store.Message, error) {
	if callerID == "" || otherID == "" {
		return nil, apperr.Invalid("both participants are required")
	}

	conv, err := s.store.GetConversationByParticipants(ctx, callerID, otherID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if err := s.Authorize(callerID, conv); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessagesSince(ctx, conv.ID, cursor)
	if err != nil {
		return nil, fmt.Errorf("listing messages since cursor: %w", err)
	}
	return messages, nil
}

// MarkRead flips a message's read flag on behalf of its receiver.
// Idempotent: marking an already-read message succeeds with no state
// change and no notification. Only the receiver may mark a message read.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) (bool, error) {
	if messageID == "" {
		return false, apperr.Invalid("message id is required")
	}
	if readerID == "" {
		return false, apperr.Invalid("reader is required")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, apperr.NotFound("message not found")
	}
	if err != nil {
		return false, fmt.Errorf("looking up message: %w", err)
	}

	if readerID != msg.ReceiverID {
		return false, apperr.Forbidden("only the receiver may mark a message read")
	}

	if msg.IsRead {
		return true, nil
	}

	changed, err := s.store.MarkMessageRead(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, apperr.NotFound("message not found")
	}
	if err != nil {
		return false, fmt.Errorf("marking message read: %w", err)
	}

	// Another reader session won the race - state is already what the
	// caller asked for, so nothing to announce.
	if !changed {
		return true, nil
	}

	s.logger.Debug("message marked read",
		"message_id", messageID,
		"reader", readerID)

	if s.notifier != nil {
		s.notifier.NotifyRead(msg.ID, msg.ConversationID, msg.SenderID)
	}

	return true, nil
}

// UnreadCount returns the number of unread messages addressed to the
// participant across all their conversations.
func (s *Service) UnreadCount(ctx context.Context, participantID string) (int, error) {
	if participantID == "" {
		return 0, apperr.Invalid("participant is required")
	}

	count, err := s.store.CountUnread(ctx, participantID)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// Authorize checks that the participant is one of the conversation's two
// parties. Every operation targeting an existing conversation goes through
// this before touching state.
func (s *Service) Authorize(participantID string, conv *store.Conversation) error {
	if conv.Involves(participantID) {
		return nil
	}
	return apperr.Forbidden("not a participant of this conversation")
}
