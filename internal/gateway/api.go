// ABOUTME: REST handlers for conversations, messages, read receipts, and reconciliation
// ABOUTME: Maps store models to wire JSON and the error taxonomy to HTTP statuses

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/apperr"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/auth"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/chat"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/store"
)

const defaultPageSize = 20

// apiMessage is the wire representation of a message.
type apiMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// apiConversation is the wire representation of a conversation summary.
type apiConversation struct {
	ConversationID     string    `json:"conversationId"`
	OtherParticipantID string    `json:"otherParticipantId"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
}

// sendMessageRequest is the POST /api/messages body.
type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// markReadRequest is the POST /api/messages/read body.
type markReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

func toAPIMessage(m *store.Message) apiMessage {
	return apiMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		IsRead:         m.IsRead,
	}
}

func toAPIConversation(c *chat.ConversationSummary) apiConversation {
	return apiConversation{
		ConversationID:     c.ConversationID,
		OtherParticipantID: c.OtherParticipantID,
		LastMessageAt:      c.LastMessageAt,
	}
}

// handleListConversations returns the caller's conversations, most recent first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	caller := auth.ParticipantFromContext(r.Context())
	summaries, err := g.chat.ListConversations(r.Context(), caller)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": lo.Map(summaries, func(s *chat.ConversationSummary, _ int) apiConversation {
			return toAPIConversation(s)
		}),
	})
}

// handleMessages dispatches GET (page history) and POST (send) on /api/messages.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleGetMessages(w, r)
	case http.MethodPost:
		g.handleSendMessage(w, r)
	default:
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	caller := auth.ParticipantFromContext(r.Context())
	other := r.URL.Query().Get("with")
	if other == "" {
		g.sendJSONError(w, http.StatusBadRequest, "with query param is required")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "pageSize must be a positive integer")
		return
	}

	messages, total, err := g.chat.GetMessages(r.Context(), caller, other, page, pageSize)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"messages": lo.Map(messages, func(m *store.Message, _ int) apiMessage { return toAPIMessage(m) }),
		"total":    total,
		"page":     page,
	})
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "receiverId and content are required")
		return
	}

	caller := auth.ParticipantFromContext(r.Context())
	msg, err := g.chat.Send(r.Context(), caller, req.ReceiverID, req.Content)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, toAPIMessage(msg))
}

// handleMarkRead marks a single message as read by its receiver.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "messageId is required")
		return
	}

	caller := auth.ParticipantFromContext(r.Context())
	read, err := g.chat.MarkRead(r.Context(), req.MessageID, caller)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]bool{"read": read})
}

// handleUnreadCount returns the caller's unread message count across all conversations.
func (g *Gateway) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	caller := auth.ParticipantFromContext(r.Context())
	count, err := g.chat.UnreadCount(r.Context(), caller)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleMessagesSince returns messages newer than the cursor for reconciliation
// after a dropped realtime connection.
func (g *Gateway) handleMessagesSince(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	caller := auth.ParticipantFromContext(r.Context())
	other := r.URL.Query().Get("with")
	if other == "" {
		g.sendJSONError(w, http.StatusBadRequest, "with query param is required")
		return
	}

	cursor := time.Time{}
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "cursor must be an RFC 3339 timestamp")
			return
		}
		cursor = parsed
	}

	messages, err := g.chat.Since(r.Context(), caller, other, cursor)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"messages": lo.Map(messages, func(m *store.Message, _ int) apiMessage { return toAPIMessage(m) }),
	})
}

// writeError maps an error to its HTTP status via the error taxonomy.
// Unclassified errors are logged and reported as 500 without detail.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	message := "internal server error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) && code != apperr.CodeInternal {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
	}

	g.sendJSONError(w, status, message)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// queryInt parses a positive integer query param, using def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
