package services

import (
	"fmt"
	"sync"
	"time"

	"audioembed/types"
	"audioembed/websocket"
)

// Tracker keeps an in-memory view of recent predict requests and pushes
// their progress to websocket subscribers. It is not a queue: requests run
// synchronously in their handler and are only observed here.
type Tracker interface {
	Start(id string, items int) error
	Observe(ev types.ProgressEvent)
	SetPhase(id string, phase types.Phase, total int)
	Finish(id string, status types.RequestStatus, errorMsg string, failures []types.ItemFailure)
	Get(id string) (types.RequestRecord, bool)
	All() []types.RequestRecord
}

// tracker holds at most maxRecords requests, evicting the oldest finished ones
type tracker struct {
	records    map[string]*types.RequestRecord
	order      []string
	mu         sync.RWMutex
	maxRecords int
	hub        websocket.Hub
}

// NewTracker creates a tracker. hub may be nil.
func NewTracker(maxRecords int, hub websocket.Hub) Tracker {
	if maxRecords < 1 {
		maxRecords = 1
	}
	return &tracker{
		records:    make(map[string]*types.RequestRecord),
		maxRecords: maxRecords,
		hub:        hub,
	}
}

// Start registers a running request
func (t *tracker) Start(id string, items int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, exists := t.records[id]; exists {
		if rec.Status == types.RequestStatusRunning {
			return types.InvalidRequest("request id %s is already in use", id)
		}
		t.remove(id)
	}

	t.records[id] = &types.RequestRecord{
		ID:        id,
		Status:    types.RequestStatusRunning,
		Phase:     types.PhaseResolve,
		Items:     items,
		CreatedAt: time.Now(),
	}
	t.order = append(t.order, id)
	t.evict()

	t.broadcast(id, "status", types.PhaseResolve, "", -1, string(types.RequestStatusRunning), "request started", 0)
	return nil
}

// SetPhase moves a request into phase with total units of work
func (t *tracker) SetPhase(id string, phase types.Phase, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, exists := t.records[id]; exists {
		rec.Phase = phase
		rec.Items = total
		rec.Done = 0
		t.broadcast(id, "status", phase, "", -1, string(rec.Status), fmt.Sprintf("%s started for %d item(s)", phase, total), 0)
	}
}

// Observe records one finished unit of work
func (t *tracker) Observe(ev types.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[ev.RequestID]
	if !exists {
		return
	}
	if ev.Done > rec.Done {
		rec.Done = ev.Done
	}

	msgType := "progress"
	message := fmt.Sprintf("%s %d of %d", ev.Phase, ev.Done, ev.Total)
	if ev.Err != nil {
		msgType = "error"
		message = ev.Err.Error()
	}
	progress := 100.0
	if ev.Total > 0 {
		progress = float64(ev.Done) / float64(ev.Total) * 100
	}
	t.broadcast(ev.RequestID, msgType, ev.Phase, ev.Key, ev.Index, string(rec.Status), message, progress)
}

// Finish marks a request as done
func (t *tracker) Finish(id string, status types.RequestStatus, errorMsg string, failures []types.ItemFailure) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[id]
	if !exists {
		return
	}
	now := time.Now()
	rec.Status = status
	rec.Error = errorMsg
	rec.Failures = failures
	rec.CompletedAt = &now

	msgType := "complete"
	message := fmt.Sprintf("request %s", status)
	if status == types.RequestStatusFailed {
		msgType = "error"
		message = errorMsg
	}
	t.broadcast(id, msgType, rec.Phase, "", -1, string(status), message, 100)
	t.evict()
}

// Get returns a copy of the record for id
func (t *tracker) Get(id string) (types.RequestRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.records[id]
	if !exists {
		return types.RequestRecord{}, false
	}
	return *rec, true
}

// All returns copies of every record, oldest first
func (t *tracker) All() []types.RequestRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]types.RequestRecord, 0, len(t.order))
	for _, id := range t.order {
		records = append(records, *t.records[id])
	}
	return records
}

// evict drops the oldest finished records beyond maxRecords. Caller holds mu.
func (t *tracker) evict() {
	for i := 0; len(t.order) > t.maxRecords && i < len(t.order); {
		id := t.order[i]
		if t.records[id].Status == types.RequestStatusRunning {
			i++
			continue
		}
		t.remove(id)
	}
}

// remove deletes id from the map and the order slice. Caller holds mu.
func (t *tracker) remove(id string) {
	delete(t.records, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *tracker) broadcast(id, msgType string, phase types.Phase, item string, index int, status, message string, progress float64) {
	if t.hub == nil {
		return
	}
	t.hub.BroadcastProgress(types.ProgressMessage{
		RequestID: id,
		Type:      msgType,
		Phase:     string(phase),
		Progress:  progress,
		Status:    status,
		Item:      item,
		Index:     index,
		Message:   message,
		Timestamp: time.Now(),
	})
}
