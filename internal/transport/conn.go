package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer     = 64
	maxMessageSize = 1 << 20
)

// conn is one upgraded client connection. All writes go through the
// write loop; reads happen on the goroutine serving the request.
type conn struct {
	ws           *websocket.Conn
	log          zerolog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn, writeTimeout, pingInterval time.Duration, log zerolog.Logger) *conn {
	c := &conn{
		ws:           ws,
		log:          log,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	if pingInterval > 0 {
		pongWait := 2 * pingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return c
}

// enqueue hands a frame to the write loop. It reports false once the
// connection is closed.
func (c *conn) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Done is closed when the connection shuts down.
func (c *conn) Done() <-chan struct{} {
	return c.done
}

func (c *conn) writeLoop() {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg := <-c.send:
			c.setWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed, closing connection")
				c.close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
				c.log.Debug().Err(err).Msg("ping failed, closing connection")
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.deadline())
			return
		}
	}
}

func (c *conn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}

func (c *conn) setWriteDeadline() {
	_ = c.ws.SetWriteDeadline(c.deadline())
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// shutdown closes the connection and releases the socket once the write
// loop has sent the close frame.
func (c *conn) shutdown(writerDone <-chan struct{}) {
	c.close()
	select {
	case <-writerDone:
	case <-time.After(time.Second):
	}
	_ = c.ws.Close()
}
