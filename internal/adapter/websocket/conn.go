package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	closeWriteTimeout = time.Second
	// maxCloseReason is the largest control frame payload minus the 2-byte status code.
	maxCloseReason = 123
)

// Conn adapts a gorilla connection to realtime.Transport. WriteText and
// WritePing are called by one writer goroutine; Close may run concurrently.
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteText(ctx context.Context, data []byte) error {
	_ = c.ws.SetWriteDeadline(deadline(ctx))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) WritePing(ctx context.Context) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline(ctx))
}

// Close sends a close frame carrying reason and closes the connection.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		err = c.ws.Close()
	})
	return err
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
