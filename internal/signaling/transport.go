package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a *websocket.Conn to the Hub's Transport interface:
// the handler owns the read pump, and all writes from any goroutine are
// serialized through one mutex.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla/websocket: at most one writer goroutine at a time
	closed  bool
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// Send writes one envelope as a JSON text frame. It is safe to call
// concurrently with itself (e.g. the hub forwarding from another sender's
// goroutine while this connection's own read loop is also sending a
// "ready" reply).
func (t *wsTransport) Send(e Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(e)
}

// Close sends a close frame carrying statusCode/reason, then closes the
// connection, so the client can distinguish a normal close from an error.
func (t *wsTransport) Close(statusCode int, reason string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(statusCode, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

// writeWait bounds a single write, including the close handshake.
const writeWait = 10 * time.Second
