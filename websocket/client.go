package websocket

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
	"vesselwatch/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 512

	// Inbound request budget per client
	requestsPerSecond = 20
	requestBurst      = 40
)

type Client struct {
	// WebSocket connection
	conn *websocket.Conn

	// Connection metadata
	connectionID string
	connectedAt  time.Time
	lastActivity atomic.Int64
	ipAddress    string
	userAgent    string

	// Buffered channel of outbound messages. Written and closed only by the hub run loop.
	send chan models.WSMessage

	// Hub reference
	hub *Hub

	limiter *rate.Limiter
	filter  *TrackerFilter

	// Replay state, owned by the hub run loop
	resumeFrom   int64
	lastSequence int64
	catchingUp   bool
}

// NewClient builds a client for an upgraded connection. The query string
// may carry after_sequence (replay the event log from there before live
// traffic) and trackers (comma separated filter).
func NewClient(conn *websocket.Conn, hub *Hub, r *http.Request) *Client {
	client := &Client{
		conn:         conn,
		hub:          hub,
		send:         make(chan models.WSMessage, sendBufferSize),
		connectionID: uuid.New().String(),
		connectedAt:  time.Now(),
		ipAddress:    getClientIP(r),
		userAgent:    r.UserAgent(),
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		filter:       ParseTrackerFilter(r.URL.Query().Get("trackers")),
		resumeFrom:   -1,
	}
	client.touch()

	if raw := r.URL.Query().Get("after_sequence"); raw != "" {
		if after, err := strconv.ParseInt(raw, 10, 64); err == nil && after >= 0 {
			client.resumeFrom = after
		}
	}

	return client
}

func (c *Client) ID() string {
	return c.connectionID
}

func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Errorf("WebSocket error for client %s: %v", c.connectionID, err)
			}
			return
		}

		c.touch()

		if !c.limiter.Allow() {
			c.reply(errorMessage(models.WSErrorRateLimit, "Rate limit exceeded", ""))
			continue
		}

		c.handleMessage(data)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for client %s: %v", c.connectionID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.Warnf("Ping failed for client %s, disconnecting", c.connectionID)
				return
			}
		}
	}
}

// reply routes a response through the hub so the send queue keeps a single writer.
func (c *Client) reply(message models.WSMessage) {
	c.hub.sendTo(c, message)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
