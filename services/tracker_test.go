package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"audioembed/types"
	"audioembed/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHub captures broadcasts instead of writing to sockets
type recordingHub struct {
	mu   sync.Mutex
	msgs []types.ProgressMessage
}

func (h *recordingHub) Run()                               {}
func (h *recordingHub) Stop()                              {}
func (h *recordingHub) RegisterClient(*websocket.Client)   {}
func (h *recordingHub) UnregisterClient(*websocket.Client) {}
func (h *recordingHub) ClientCount() int                   { return 0 }

func (h *recordingHub) BroadcastProgress(msg types.ProgressMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *recordingHub) msgTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestTrackerLifecycle(t *testing.T) {
	hub := &recordingHub{}
	tr := NewTracker(10, hub)

	require.NoError(t, tr.Start("r1", 2))
	tr.SetPhase("r1", types.PhaseNormalize, 2)
	tr.Observe(types.ProgressEvent{RequestID: "r1", Phase: types.PhaseNormalize, Index: 0, Key: "a.wav", Done: 1, Total: 2})
	tr.Observe(types.ProgressEvent{RequestID: "r1", Phase: types.PhaseNormalize, Index: 1, Key: "b.txt", Done: 2, Total: 2, Err: errors.New("unsupported")})

	rec, ok := tr.Get("r1")
	require.True(t, ok)
	assert.Equal(t, types.RequestStatusRunning, rec.Status)
	assert.Equal(t, types.PhaseNormalize, rec.Phase)
	assert.Equal(t, 2, rec.Done)
	assert.Nil(t, rec.CompletedAt)

	failures := []types.ItemFailure{{Index: 1, Key: "b.txt", Kind: types.KindUnsupportedFormat, Reason: "unsupported"}}
	tr.Finish("r1", types.RequestStatusFailed, "normalize failed", failures)

	rec, _ = tr.Get("r1")
	assert.Equal(t, types.RequestStatusFailed, rec.Status)
	assert.Equal(t, "normalize failed", rec.Error)
	assert.Equal(t, failures, rec.Failures)
	assert.NotNil(t, rec.CompletedAt)

	assert.Equal(t, []string{"status", "status", "progress", "error", "error"}, hub.msgTypes())
	hub.mu.Lock()
	assert.Equal(t, "r1", hub.msgs[2].RequestID)
	assert.Equal(t, "a.wav", hub.msgs[2].Item)
	assert.Equal(t, 50.0, hub.msgs[2].Progress)
	hub.mu.Unlock()
}

func TestTrackerRejectsRunningDuplicate(t *testing.T) {
	tr := NewTracker(10, nil)

	require.NoError(t, tr.Start("dup", 1))
	err := tr.Start("dup", 1)
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))

	tr.Finish("dup", types.RequestStatusCompleted, "", nil)
	require.NoError(t, tr.Start("dup", 3), "finished ids can be reused")

	rec, _ := tr.Get("dup")
	assert.Equal(t, types.RequestStatusRunning, rec.Status)
	assert.Equal(t, 3, rec.Items)
	assert.Len(t, tr.All(), 1)
}

func TestTrackerEvictsOldestFinished(t *testing.T) {
	tr := NewTracker(3, nil)

	require.NoError(t, tr.Start("running", 1))
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("done-%d", i)
		require.NoError(t, tr.Start(id, 1))
		tr.Finish(id, types.RequestStatusCompleted, "", nil)
	}

	var ids []string
	for _, rec := range tr.All() {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"running", "done-3", "done-4"}, ids)

	_, ok := tr.Get("done-0")
	assert.False(t, ok)
}

func TestTrackerIgnoresUnknownRequests(t *testing.T) {
	hub := &recordingHub{}
	tr := NewTracker(2, hub)

	tr.SetPhase("nope", types.PhasePredict, 1)
	tr.Observe(types.ProgressEvent{RequestID: "nope", Done: 1, Total: 1})
	tr.Finish("nope", types.RequestStatusCompleted, "", nil)

	assert.Empty(t, tr.All())
	assert.Empty(t, hub.msgTypes())
}
