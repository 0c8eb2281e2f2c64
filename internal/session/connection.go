// ABOUTME: Websocket connection wrapper with a buffered outbound queue
// ABOUTME: Implements the Session interface with bounded backpressure and keepalive pings

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 128
)

// ErrSessionClosed is returned by Push after the connection has shut down.
var ErrSessionClosed = errors.New("session closed")

// Connection wraps a websocket and serializes outbound writes through a
// buffered channel so any goroutine can push to it safely.
type Connection struct {
	id          string
	participant string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

// NewConnection constructs a Connection for the given participant.
func NewConnection(participantID string, ws *websocket.Conn) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		participant: participantID,
		ws:          ws,
		send:        make(chan []byte, sendBufferSize),
		close:       make(chan struct{}),
	}
}

// SessionID returns the unique identifier for this connection.
func (c *Connection) SessionID() string { return c.id }

// Participant returns the participant this connection authenticated as.
func (c *Connection) Participant() string { return c.participant }

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Push enqueues payload for delivery. If the client is too slow to drain
// the buffer, the connection is closed to keep backpressure bounded.
func (c *Connection) Push(payload []byte) error {
	select {
	case <-c.close:
		return ErrSessionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("send buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
