// ABOUTME: Websocket endpoint for realtime message delivery and sends
// ABOUTME: Registers a session per socket and handles message.send commands with dedupe

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/apperr"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/auth"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/dedupe"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/session"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

// CommandMessageSend asks the gateway to persist and deliver a message.
const CommandMessageSend = "message.send"

// command is the envelope for client-to-server websocket frames.
type command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sendCommandPayload is the payload of a message.send command. ClientMsgID
// is optional; when present, retried sends with the same ID are dropped.
type sendCommandPayload struct {
	ReceiverID  string `json:"receiverId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	ClientMsgID string `json:"clientMsgId"`
}

// errorEvent is pushed to the client when a command fails.
type errorEvent struct {
	Type    string `json:"type"`
	Payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"payload"`
}

// ackEvent is pushed when a message.send repeats a client message ID that
// was already delivered, so the client can settle the retry.
type ackEvent struct {
	Type    string `json:"type"`
	Payload struct {
		ClientMsgID string `json:"clientMsgId"`
		Duplicate   bool   `json:"duplicate"`
	} `json:"payload"`
}

// handleWebsocket upgrades the connection, registers a session for the
// authenticated participant, and pumps incoming commands until disconnect.
func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	participantID := auth.ParticipantFromContext(r.Context())

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err, "participant", participantID)
		return
	}

	conn := session.NewConnection(participantID, ws)
	conn.Start()
	g.sessions.Register(conn)

	defer func() {
		g.sessions.Unregister(conn)
		conn.Close(websocket.CloseNormalClosure, "")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("websocket closed unexpectedly", "error", err, "participant", participantID)
			}
			return
		}
		g.handleCommand(r.Context(), conn, raw)
	}
}

func (g *Gateway) handleCommand(ctx context.Context, conn *session.Connection, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		g.pushError(conn, apperr.CodeInvalidArgument, "invalid command frame")
		return
	}

	switch cmd.Type {
	case CommandMessageSend:
		g.handleSendCommand(ctx, conn, cmd.Payload)
	default:
		g.pushError(conn, apperr.CodeInvalidArgument, "unknown command type: "+cmd.Type)
	}
}

func (g *Gateway) handleSendCommand(ctx context.Context, conn *session.Connection, payload json.RawMessage) {
	var req sendCommandPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		g.pushError(conn, apperr.CodeInvalidArgument, "invalid message.send payload")
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		g.pushError(conn, apperr.CodeInvalidArgument, "receiverId and content are required")
		return
	}

	// Marking before the send keeps a pair of racing identical frames from
	// both appending; a failed send unmarks so the client's retry is safe.
	var key string
	if req.ClientMsgID != "" {
		key = dedupe.Key(conn.Participant(), req.ClientMsgID)
		if g.dedupe.CheckAndMark(key) {
			g.logger.Debug("acknowledging duplicate message",
				"participant", conn.Participant(),
				"client_msg_id", req.ClientMsgID)
			g.pushDuplicateAck(conn, req.ClientMsgID)
			return
		}
	}

	if _, err := g.chat.Send(ctx, conn.Participant(), req.ReceiverID, req.Content); err != nil {
		if key != "" {
			g.dedupe.Remove(key)
		}
		g.pushError(conn, apperr.CodeOf(err), errorMessageOf(err))
	}
}

// pushDuplicateAck tells the client its retried message was already
// delivered, so it can stop resending.
func (g *Gateway) pushDuplicateAck(conn *session.Connection, clientMsgID string) {
	ev := ackEvent{Type: "message.ack"}
	ev.Payload.ClientMsgID = clientMsgID
	ev.Payload.Duplicate = true

	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := conn.Push(raw); err != nil {
		g.logger.Debug("failed to push ack event", "error", err, "participant", conn.Participant())
	}
}

// pushError delivers a command failure to the client. Delivery is best
// effort like any other push.
func (g *Gateway) pushError(conn *session.Connection, code apperr.Code, message string) {
	ev := errorEvent{Type: "error"}
	ev.Payload.Code = string(code)
	ev.Payload.Message = message

	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := conn.Push(raw); err != nil {
		g.logger.Debug("failed to push error event", "error", err, "participant", conn.Participant())
	}
}

func errorMessageOf(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && apperr.CodeOf(err) != apperr.CodeInternal {
		return appErr.Message
	}
	return "internal server error"
}
