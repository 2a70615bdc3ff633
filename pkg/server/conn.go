package server

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to the registry's Conn interface.
// Send never blocks: a full buffer is a send failure, which makes the
// registry drop the connection eagerly instead of letting one slow
// client stall broadcasts to everyone else.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWsConn(conn *websocket.Conn, sendBuffer int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close signals shutdown. The underlying socket is closed by the write
// pump once it has drained pending frames, so a terminal error reply
// enqueued just before Close still reaches the client.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}
