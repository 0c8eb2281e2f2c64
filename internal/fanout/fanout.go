// ABOUTME: Best-effort fan-out of chat events to live realtime sessions
// ABOUTME: Marshals each event once and pushes it to every session of the affected participants

package fanout

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/session"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/store"
)

// Event types pushed over realtime sessions.
const (
	EventMessageReceived = "message.received"
	EventMessageRead     = "message.read"
)

// Event is the envelope for every realtime push.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// MessagePayload is the wire shape of a delivered message.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// ReadPayload is the wire shape of a read receipt.
type ReadPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Fanout pushes chat events to live sessions. Delivery is best effort:
// failures are logged and never surfaced to the sender, and persistence
// always happens before any push.
type Fanout struct {
	registry *session.Registry
	logger   *slog.Logger
}

// New constructs a Fanout over the given session registry.
func New(registry *session.Registry, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		registry: registry,
		logger:   logger.With("component", "fanout"),
	}
}

// NotifyNewMessage pushes the persisted message to every live session of
// both participants. Offline participants are skipped silently; they catch
// up through reconciliation.
func (f *Fanout) NotifyNewMessage(msg *store.Message) {
	payload, err := json.Marshal(Event{
		Type: EventMessageReceived,
		Payload: MessagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			Content:        msg.Content,
			SentAt:         msg.SentAt,
			IsRead:         msg.IsRead,
		},
	})
	if err != nil {
		f.logger.Error("failed to marshal message event", "error", err, "message_id", msg.ID)
		return
	}

	f.push(msg.ReceiverID, payload, EventMessageReceived)
	f.push(msg.SenderID, payload, EventMessageReceived)
}

// NotifyRead pushes a read receipt to the sessions of the message's
// original sender.
func (f *Fanout) NotifyRead(messageID, conversationID, originalSenderID string) {
	payload, err := json.Marshal(Event{
		Type: EventMessageRead,
		Payload: ReadPayload{
			MessageID:      messageID,
			ConversationID: conversationID,
		},
	})
	if err != nil {
		f.logger.Error("failed to marshal read event", "error", err, "message_id", messageID)
		return
	}

	f.push(originalSenderID, payload, EventMessageRead)
}

func (f *Fanout) push(participantID string, payload []byte, eventType string) {
	for _, s := range f.registry.SessionsFor(participantID) {
		if err := s.Push(payload); err != nil {
			f.logger.Warn("failed to push event to session",
				"error", err,
				"event", eventType,
				"participant", participantID,
				"session_id", s.SessionID())
		}
	}
}
