package chat

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one live connection attached to the relay.
// Session fields (Username, Room, PushToken) are owned by the Registry and
// must only be touched while the Registry's lock is held.
type Client struct {
	ConnID string          // unique for the connection's lifetime, never reused
	WS     *websocket.Conn // nil in tests that bypass the transport
	Send   chan []byte     // outbound queue, consumed by a single writer goroutine

	Username  string
	Room      string // empty until the first joinRoom
	PushToken string

	sendMu sync.RWMutex
	closed bool
}

// NewClient creates a connection session with no room and no push token.
func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
	}
}

// TrySend enqueues payload without blocking. A full queue or a closed
// connection drops the payload and returns false.
func (c *Client) TrySend(payload []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// CloseSend marks the client closed and closes the outbound queue. Safe to
// call once, after the client has been removed from the Registry.
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
