package types

// AudioItem is one submission flowing through the pipeline.
// Index is the item's identity; Key is only used for display and classification.
type AudioItem struct {
	Index        int
	Key          string
	Raw          []byte
	DeclaredType string
	Format       Format
	ScratchID    string
	Canonical    []byte
	Embedding    Embedding
	Err          error
}

// Failed reports whether the item hit a terminal error
func (it *AudioItem) Failed() bool {
	return it.Err != nil
}

// Batch is the ordered set of items submitted in one request
type Batch struct {
	RequestID string
	Items     []*AudioItem
}

// Len returns the number of items in the batch
func (b *Batch) Len() int {
	return len(b.Items)
}

// Failures lists every failed item in batch order
func (b *Batch) Failures() []ItemFailure {
	var failures []ItemFailure
	for _, item := range b.Items {
		if item.Err != nil {
			failures = append(failures, FailureOf(item.Index, item.Key, item.Err))
		}
	}
	return failures
}

// TranscodeJob asks the transcoder to decode InputPath into OutputPath
type TranscodeJob struct {
	Index      int
	InputPath  string
	OutputPath string
	Target     Format
}

// PredictJob carries canonical bytes for one item to the model
type PredictJob struct {
	Index int
	Input []byte
}

// PredictResult is the model output for the item at Index
type PredictResult struct {
	Index     int
	Embedding Embedding
	Err       error
}
