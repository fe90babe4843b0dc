package websocket

import (
	"audioembed/types"
	"log"
	"sync"
	"time"
)

// Hub fans pipeline progress out to subscribed websocket clients
type Hub interface {
	Run()
	Stop()
	BroadcastProgress(msg types.ProgressMessage)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
	ClientCount() int
}

// hub keeps subscribers per request id; AllRequests subscribers see everything
type hub struct {
	subscribers map[string]map[*Client]bool

	progress   chan types.ProgressMessage
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() Hub {
	return &hub{
		subscribers: make(map[string]map[*Client]bool),
		progress:    make(chan types.ProgressMessage, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stop:        make(chan struct{}),
	}
}

// Run serves registrations and progress until Stop is called
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.subscribers[client.requestID] == nil {
				h.subscribers[client.requestID] = make(map[*Client]bool)
			}
			h.subscribers[client.requestID][client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client subscribed to request %s", client.requestID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.progress:
			h.mu.Lock()
			h.deliver(msg.RequestID, msg)
			h.deliver(AllRequests, msg)
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for _, set := range h.subscribers {
				for client := range set {
					h.drop(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// deliver queues msg for every subscriber of key. Subscribers that cannot keep
// up are dropped, as are single-request subscribers once their request ends.
// Caller holds mu.
func (h *hub) deliver(key string, msg types.ProgressMessage) {
	for client := range h.subscribers[key] {
		select {
		case client.send <- msg:
			if key != AllRequests && msg.Terminal() {
				h.drop(client)
			}
		default:
			log.Printf("WebSocket client for request %s is too slow, disconnecting", key)
			h.drop(client)
		}
	}
}

// drop removes client and closes its send queue exactly once. Caller holds mu.
func (h *hub) drop(client *Client) {
	set, ok := h.subscribers[client.requestID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.subscribers, client.requestID)
	}
}

// Stop disconnects every client and ends Run
func (h *hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// BroadcastProgress queues a progress message without blocking the pipeline
func (h *hub) BroadcastProgress(msg types.ProgressMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	select {
	case h.progress <- msg:
	default:
		log.Printf("WebSocket progress queue full, dropping %s update for request %s", msg.Type, msg.RequestID)
	}
}

// RegisterClient subscribes client. It is a no-op once the hub has stopped.
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
		close(client.send)
	}
}

// UnregisterClient unsubscribes client
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected subscribers
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.subscribers {
		n += len(set)
	}
	return n
}
