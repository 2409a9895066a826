package relay

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per session before drops start
	sendBuffer = 256
)

// Client is one live session, scoped to exactly one channel for its
// whole lifetime.
type Client struct {
	id        string
	channelID string
	hub       *Hub
	conn      *websocket.Conn

	send       chan []byte
	sendClosed int32
}

// NewClient wraps an upgraded connection as a session on channelID.
func NewClient(hub *Hub, conn *websocket.Conn, channelID string) *Client {
	return &Client{
		id:        uuid.New().String(),
		channelID: channelID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
}

// ID returns the session identifier.
func (c *Client) ID() string {
	return c.id
}

// ChannelID returns the channel this session is scoped to.
func (c *Client) ChannelID() string {
	return c.channelID
}

// Start registers the session with the hub and launches its pumps.
func (c *Client) Start() {
	select {
	case c.hub.register <- c:
	case <-c.hub.ctx.Done():
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// closeSendChannel is called by the hub exactly once per session.
func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

// enqueue hands a frame to the session's writer. A session that cannot
// keep up loses the frame; fan-out is best effort and must not stall
// the hub.
func (c *Client) enqueue(payload []byte) {
	if atomic.LoadInt32(&c.sendClosed) == 1 {
		return
	}
	select {
	case c.send <- payload:
	default:
		slog.Warn("session send queue full, dropping frame", "clientID", c.id, "channelID", c.channelID)
	}
}

// sendError unicasts an error event to this session only.
func (c *Client) sendError(code, message string) {
	payload, err := encodeEvent(EventError, ErrorData{Code: code, Message: message})
	if err != nil {
		slog.Error("failed to encode error event", "clientID", c.id, "error", err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("websocket error", "clientID", c.id, "channelID", c.channelID, "error", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			c.sendError("INVALID_EVENT", "invalid event envelope")
			continue
		}
		if !ev.Event.IsClientEvent() {
			c.sendError("UNKNOWN_EVENT", "unsupported event: "+ev.Event.String())
			continue
		}

		select {
		case c.hub.inbound <- clientEvent{client: c, event: ev}:
		case <-c.hub.ctx.Done():
			return
		case <-time.After(5 * time.Second):
			slog.Warn("timeout sending event to hub", "clientID", c.id, "channelID", c.channelID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("write failed, closing session", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
