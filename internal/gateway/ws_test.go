// ABOUTME: End-to-end websocket tests against a live httptest server
// ABOUTME: Verifies realtime delivery, duplicate suppression, and command error handling

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/auth"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/fanout"
)

func dialWS(t *testing.T, server *httptest.Server, participant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{}
	header.Set(auth.ParticipantHeader, participant)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) fanout.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev fanout.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmdType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]any{"type": cmdType, "payload": json.RawMessage(raw)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestWebsocket_DeliversToBothParticipants(t *testing.T) {
	server := httptest.NewServer(newTestGateway(t))
	defer server.Close()

	customer := dialWS(t, server, "customer-1")
	manager := dialWS(t, server, "manager-1")

	sendCommand(t, customer, CommandMessageSend, map[string]string{
		"receiverId": "manager-1",
		"content":    "table for two?",
	})

	for name, conn := range map[string]*websocket.Conn{"customer": customer, "manager": manager} {
		ev := readEvent(t, conn)
		assert.Equal(t, fanout.EventMessageReceived, ev.Type, "socket %s", name)
	}
}

func TestWebsocket_SendVisibleOverREST(t *testing.T) {
	handler := newTestGateway(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	customer := dialWS(t, server, "customer-1")
	sendCommand(t, customer, CommandMessageSend, map[string]string{
		"receiverId": "manager-1",
		"content":    "persisted?",
	})
	readEvent(t, customer) // wait for the echo so the write has landed

	rec := doRequest(t, handler, http.MethodGet, "/api/messages?with=customer-1", "manager-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Messages []apiMessage `json:"messages"`
	}
	decodeBody(t, rec, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "persisted?", page.Messages[0].Content)
}

func TestWebsocket_DuplicateClientMsgIDAckedNotReappended(t *testing.T) {
	handler := newTestGateway(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	customer := dialWS(t, server, "customer-1")
	payload := map[string]string{
		"receiverId":  "manager-1",
		"content":     "retry me",
		"clientMsgId": "client-42",
	}
	sendCommand(t, customer, CommandMessageSend, payload)
	ev := readEvent(t, customer)
	assert.Equal(t, fanout.EventMessageReceived, ev.Type)

	// The duplicate is acknowledged instead of re-appended
	sendCommand(t, customer, CommandMessageSend, payload)
	ev = readEvent(t, customer)
	assert.Equal(t, "message.ack", ev.Type)

	rec := doRequest(t, handler, http.MethodGet, "/api/messages?with=customer-1", "manager-1", nil)
	var page struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &page)
	assert.Equal(t, 1, page.Total)
}

func TestWebsocket_RetryAfterFailedSendIsPersisted(t *testing.T) {
	handler := newTestGateway(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	customer := dialWS(t, server, "customer-1")

	// Whitespace content passes frame validation but the service rejects it
	sendCommand(t, customer, CommandMessageSend, map[string]string{
		"receiverId":  "manager-1",
		"content":     "   ",
		"clientMsgId": "retry-1",
	})
	ev := readEvent(t, customer)
	require.Equal(t, "error", ev.Type)

	// The failed attempt must not poison the client message ID: the retry
	// with corrected content lands
	sendCommand(t, customer, CommandMessageSend, map[string]string{
		"receiverId":  "manager-1",
		"content":     "second try",
		"clientMsgId": "retry-1",
	})
	ev = readEvent(t, customer)
	assert.Equal(t, fanout.EventMessageReceived, ev.Type)

	rec := doRequest(t, handler, http.MethodGet, "/api/messages?with=customer-1", "manager-1", nil)
	var page struct {
		Messages []apiMessage `json:"messages"`
		Total    int          `json:"total"`
	}
	decodeBody(t, rec, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "second try", page.Messages[0].Content)
}

func TestWebsocket_InvalidCommandsGetErrorEvents(t *testing.T) {
	server := httptest.NewServer(newTestGateway(t))
	defer server.Close()

	customer := dialWS(t, server, "customer-1")

	sendCommand(t, customer, "presence.ping", map[string]string{})
	ev := readEvent(t, customer)
	assert.Equal(t, "error", ev.Type)

	sendCommand(t, customer, CommandMessageSend, map[string]string{"receiverId": "manager-1"})
	ev = readEvent(t, customer)
	assert.Equal(t, "error", ev.Type)

	// Self-send is rejected by the service and surfaced on the socket
	sendCommand(t, customer, CommandMessageSend, map[string]string{
		"receiverId": "customer-1",
		"content":    "note to self",
	})
	ev = readEvent(t, customer)
	assert.Equal(t, "error", ev.Type)
}

func TestWebsocket_RequiresIdentity(t *testing.T) {
	server := httptest.NewServer(newTestGateway(t))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
