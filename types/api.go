package types

// Format identifies how an item's bytes are encoded
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
)

// CanonicalFormat is the decoded representation the model consumes
const CanonicalFormat = FormatWAV

// IsCanonical reports whether the format can be handed to the model as-is
func (f Format) IsCanonical() bool {
	return f == CanonicalFormat
}

// Embedding is the per-item tensor returned by the model (frames x dimensions)
type Embedding [][]float32

// Upload is a file submitted in the request body
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Input is the caller-supplied descriptor for one predict request.
// Exactly one of Uploads or URLs must be set.
type Input struct {
	Uploads []Upload
	URLs    []string
}

// PredictResponse is the JSON body returned by the predict endpoint
type PredictResponse struct {
	Status    string        `json:"status"` // "ok", "partial" or "error"
	RequestID string        `json:"requestId,omitempty"`
	Embedding []Embedding   `json:"embedding,omitempty"`
	Message   string        `json:"message,omitempty"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// ItemFailure describes why a single item produced no embedding
type ItemFailure struct {
	Index  int       `json:"index"`
	Key    string    `json:"key"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}
