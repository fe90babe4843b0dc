package types

import "time"

// Phase names a stage of the pipeline
type Phase string

const (
	PhaseResolve   Phase = "resolve"
	PhaseNormalize Phase = "normalize"
	PhasePredict   Phase = "predict"
	PhaseAggregate Phase = "aggregate"
)

// RequestStatus represents the current status of a predict request
type RequestStatus string

const (
	RequestStatusRunning   RequestStatus = "running"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusPartial   RequestStatus = "partial"
	RequestStatusFailed    RequestStatus = "failed"
)

// RequestRecord is the tracker's view of one predict request
type RequestRecord struct {
	ID          string        `json:"id"`
	Status      RequestStatus `json:"status"`
	Phase       Phase         `json:"phase"`
	Items       int           `json:"items"`
	Done        int           `json:"done"`
	Error       string        `json:"error,omitempty"`
	Failures    []ItemFailure `json:"failures,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// ProgressEvent is emitted by the pipeline as items move through each phase
type ProgressEvent struct {
	RequestID string
	Phase     Phase
	Index     int // -1 for phase-level events
	Key       string
	Done      int
	Total     int
	Err       error
}

// ProgressFunc observes pipeline progress. It may be called from several goroutines at once.
type ProgressFunc func(ProgressEvent)
