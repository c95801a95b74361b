package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"groupchat/internal/logger"
	"groupchat/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 256
)

var (
	errBufferFull = errors.New("send buffer full")
	errClosed     = errors.New("connection closed")
)

// Client is one gorilla websocket connection. It implements realtime.Conn.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	send      chan *realtime.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan *realtime.Event, sendBufSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues ev without blocking. A slow client loses events instead of
// stalling the fan-out.
func (c *Client) Send(ev *realtime.Event) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errBufferFull
	}
}

// Close stops the write pump, which closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes inbound frames and hands them to handle until the peer
// goes away or misses a pong.
func (c *Client) readPump(handle func(*realtime.Event)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev realtime.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("ws_read_failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if ev.Type == "" {
			continue
		}
		handle(&ev)
	}
}

// writePump owns every write to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Log.Warn("ws_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
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
