package websocket

import (
	"audioembed/config"
	"audioembed/types"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// AllRequests subscribes a client to progress of every request
const AllRequests = "all"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-host connections, clients without an Origin
// header and the configured CORS origins
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://") == r.Host {
		return true
	}
	for _, o := range config.GetCORSOrigins() {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Client is one websocket subscriber. It only writes: anything the peer
// sends is discarded, reads just keep the connection's deadlines alive.
type Client struct {
	hub       Hub
	conn      *websocket.Conn
	send      chan types.ProgressMessage
	requestID string
}

// NewClient creates a client following requestID, or every request when requestID is AllRequests
func NewClient(hub Hub, conn *websocket.Conn, requestID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan types.ProgressMessage, 64),
		requestID: requestID,
	}
}

// StartPumps starts the read and write pumps for the client
func (c *Client) StartPumps() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for request %s: %v", c.requestID, err)
			}
			return
		}
	}
}

// writePump forwards queued progress. When the hub closes the queue (the
// request finished or the client fell behind) it sends a close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "request finished"))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("WebSocket write error for request %s: %v", c.requestID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetUpgrader returns the WebSocket upgrader
func GetUpgrader() websocket.Upgrader {
	return upgrader
}
