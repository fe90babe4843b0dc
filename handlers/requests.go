package handlers

import (
	"log"
	"net/http"

	"audioembed/services"
	"audioembed/websocket"

	"github.com/gin-gonic/gin"
)

// RequestHandler exposes tracked predict requests and their progress streams
type RequestHandler struct {
	tracker services.Tracker
	hub     websocket.Hub
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(tracker services.Tracker, hub websocket.Hub) *RequestHandler {
	return &RequestHandler{
		tracker: tracker,
		hub:     hub,
	}
}

// GetAllRequests returns every tracked request
func (h *RequestHandler) GetAllRequests(c *gin.Context) {
	records := h.tracker.All()
	c.JSON(http.StatusOK, gin.H{
		"requests": records,
		"total":    len(records),
	})
}

// GetRequest returns a specific request by ID
func (h *RequestHandler) GetRequest(c *gin.Context) {
	requestID := c.Param("requestId")
	record, exists := h.tracker.Get(requestID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "request not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request": record,
	})
}

// HandleWebSocketConnection streams progress for one request. The request
// need not exist yet: clients subscribe first, then submit with the same
// X-Request-ID.
func (h *RequestHandler) HandleWebSocketConnection(c *gin.Context) {
	requestID := c.Param("requestId")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request ID is required"})
		return
	}
	h.serveWebSocket(c, requestID)
}

// HandleWebSocketAllConnection streams progress for every request
func (h *RequestHandler) HandleWebSocketAllConnection(c *gin.Context) {
	h.serveWebSocket(c, websocket.AllRequests)
}

func (h *RequestHandler) serveWebSocket(c *gin.Context, requestID string) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, requestID)
	h.hub.RegisterClient(client)

	// Start client pumps
	client.StartPumps()
}
