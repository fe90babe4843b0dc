package types

import "time"

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	RequestID string    `json:"requestId"`
	Type      string    `json:"type"`           // "progress", "status", "complete", "error"
	Phase     string    `json:"phase"`          // pipeline phase the update belongs to
	Progress  float64   `json:"progress"`       // 0-100 percentage within the phase
	Status    string    `json:"status"`         // current request status
	Item      string    `json:"item,omitempty"` // key of the item that just finished
	Index     int       `json:"index"`          // batch index of that item, -1 for phase updates
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether msg is the last update for its request
func (m ProgressMessage) Terminal() bool {
	return m.Type == "complete" || (m.Type == "error" && m.Index < 0)
}
