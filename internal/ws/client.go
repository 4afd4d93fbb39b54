package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 16 * 1024
	defaultBufSize = 64
)

// Client is a Channel backed by a websocket connection. Writes go through a
// buffered queue drained by writePump; a full queue closes the client.
type Client struct {
	conn        *websocket.Conn
	info        connInfo
	send        chan []byte
	done        chan struct{}
	idleTimeout time.Duration

	closeOnce sync.Once
	mu        sync.Mutex
	closeErr  error
}

func newClient(conn *websocket.Conn, info connInfo, buffer int, idleTimeout time.Duration) *Client {
	if buffer <= 0 {
		buffer = defaultBufSize
	}
	return &Client{
		conn:        conn,
		info:        info,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		idleTimeout: idleTimeout,
	}
}

// Send queues event without blocking.
func (c *Client) Send(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.closeWith(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

func (c *Client) Close() {
	c.closeWith(nil)
}

func (c *Client) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Err returns the reason the client closed, nil for a local close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// writePump owns all writes to the connection and closes it on exit.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.idleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.closeWith(err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(err)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump delivers inbound frames to handle until the peer goes away or
// stays silent past the idle timeout.
func (c *Client) readPump(handle func([]byte)) error {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		handle(frame)
	}
}
