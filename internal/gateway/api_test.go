// ABOUTME: HTTP tests for the gateway REST API
// ABOUTME: Exercises routing, auth, error status mapping, and end-to-end message flows

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/auth"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/config"
)

// newTestGateway builds a gateway in header-auth mode over a temp database.
func newTestGateway(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")

	gw, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.store.Close() })
	return gw.routes()
}

func doRequest(t *testing.T, handler http.Handler, method, path, participant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if participant != "" {
		req.Header.Set(auth.ParticipantHeader, participant)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func sendMessage(t *testing.T, handler http.Handler, sender, receiver, content string) apiMessage {
	t.Helper()
	rec := doRequest(t, handler, http.MethodPost, "/api/messages", sender,
		map[string]string{"receiverId": receiver, "content": content})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var msg apiMessage
	decodeBody(t, rec, &msg)
	return msg
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestGateway(t)

	rec := doRequest(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestAPI_RequiresIdentity(t *testing.T) {
	handler := newTestGateway(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessage_RoundTrip(t *testing.T) {
	handler := newTestGateway(t)

	msg := sendMessage(t, handler, "customer-1", "manager-1", "Is my order ready?")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "customer-1", msg.SenderID)
	assert.Equal(t, "manager-1", msg.ReceiverID)
	assert.False(t, msg.IsRead)

	rec := doRequest(t, handler, http.MethodGet, "/api/messages?with=customer-1", "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Messages []apiMessage `json:"messages"`
		Total    int          `json:"total"`
		Page     int          `json:"page"`
	}
	decodeBody(t, rec, &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Is my order ready?", page.Messages[0].Content)
}

func TestSendMessage_Validation(t *testing.T) {
	handler := newTestGateway(t)

	cases := []struct {
		name string
		body any
	}{
		{"missing receiver", map[string]string{"content": "hi"}},
		{"missing content", map[string]string{"receiverId": "manager-1"}},
		{"self send", map[string]string{"receiverId": "customer-1", "content": "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPost, "/api/messages", "customer-1", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/messages", "customer-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessages_BadParams(t *testing.T) {
	handler := newTestGateway(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/messages", "customer-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/messages?with=x&page=zero", "customer-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/messages?with=x&page=-1", "customer-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead_Flow(t *testing.T) {
	handler := newTestGateway(t)

	msg := sendMessage(t, handler, "customer-1", "manager-1", "please read")

	// Sender cannot mark its own message read
	rec := doRequest(t, handler, http.MethodPost, "/api/messages/read", "customer-1",
		map[string]string{"messageId": msg.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Receiver can
	rec = doRequest(t, handler, http.MethodPost, "/api/messages/read", "manager-1",
		map[string]string{"messageId": msg.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]bool
	decodeBody(t, rec, &result)
	assert.True(t, result["read"])

	// Unknown message is 404
	rec = doRequest(t, handler, http.MethodPost, "/api/messages/read", "manager-1",
		map[string]string{"messageId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnreadCount(t *testing.T) {
	handler := newTestGateway(t)

	sendMessage(t, handler, "customer-1", "manager-1", "one")
	sendMessage(t, handler, "customer-2", "manager-1", "two")

	rec := doRequest(t, handler, http.MethodGet, "/api/messages/unread-count", "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]int
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result["count"])
}

func TestMessagesSince(t *testing.T) {
	handler := newTestGateway(t)

	first := sendMessage(t, handler, "customer-1", "manager-1", "first")
	second := sendMessage(t, handler, "customer-1", "manager-1", "second")

	cursor := first.SentAt.Format(time.RFC3339Nano)
	rec := doRequest(t, handler, http.MethodGet,
		fmt.Sprintf("/api/messages/since?with=customer-1&cursor=%s", cursor), "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Messages []apiMessage `json:"messages"`
	}
	decodeBody(t, rec, &result)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, second.ID, result.Messages[0].ID)

	// Bad cursor is rejected
	rec = doRequest(t, handler, http.MethodGet,
		"/api/messages/since?with=customer-1&cursor=yesterday", "manager-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Absent cursor returns everything
	rec = doRequest(t, handler, http.MethodGet,
		"/api/messages/since?with=customer-1", "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &result)
	assert.Len(t, result.Messages, 2)
}

func TestListConversations(t *testing.T) {
	handler := newTestGateway(t)

	sendMessage(t, handler, "customer-1", "manager-1", "hello")
	sendMessage(t, handler, "customer-2", "manager-1", "hi there")

	rec := doRequest(t, handler, http.MethodGet, "/api/conversations", "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Conversations []apiConversation `json:"conversations"`
	}
	decodeBody(t, rec, &result)
	require.Len(t, result.Conversations, 2)
	assert.Equal(t, "customer-2", result.Conversations[0].OtherParticipantID)
	assert.Equal(t, "customer-1", result.Conversations[1].OtherParticipantID)
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestGateway(t)

	rec := doRequest(t, handler, http.MethodDelete, "/api/messages", "customer-1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/messages/read", "customer-1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
