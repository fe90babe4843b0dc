package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindFetch             ErrorKind = "fetch_error"
	KindTranscode         ErrorKind = "transcode_error"
	KindModelInference    ErrorKind = "model_inference_error"
	KindResource          ErrorKind = "resource_error"
)

// Sentinels matched by errors.Is against *Error values of the same kind.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFetch             = errors.New("fetch failed")
	ErrTranscode         = errors.New("transcode failed")
	ErrModelInference    = errors.New("model inference failed")
	ErrResource          = errors.New("scratch resource failure")
)

var sentinels = map[ErrorKind]error{
	KindInvalidRequest:    ErrInvalidRequest,
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindFetch:             ErrFetch,
	KindTranscode:         ErrTranscode,
	KindModelInference:    ErrModelInference,
	KindResource:          ErrResource,
}

// Error is a failure attributed to one item (Index >= 0) or to the whole request (Index == -1)
type Error struct {
	Kind  ErrorKind
	Index int
	Key   string
	Err   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(sentinels[e.Kind].Error())
	if e.Key != "" {
		fmt.Fprintf(&sb, " for %q", e.Key)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NewError builds an item-scoped error
func NewError(kind ErrorKind, index int, key string, err error) *Error {
	return &Error{Kind: kind, Index: index, Key: key, Err: err}
}

// InvalidRequest builds a request-scoped InvalidRequest error
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Index: -1, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// FailureOf converts an item error into its reportable form
func FailureOf(index int, key string, err error) ItemFailure {
	kind, ok := KindOf(err)
	if !ok {
		kind = KindResource
	}
	reason := err.Error()
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		reason = e.Err.Error()
	}
	return ItemFailure{Index: index, Key: key, Kind: kind, Reason: reason}
}

// BatchError reports every failing item of a batch
type BatchError struct {
	Phase    string
	Failures []ItemFailure
	errs     []error
}

// NewBatchError collects the failed items of batch; it returns nil when none failed
func NewBatchError(phase string, batch *Batch) *BatchError {
	be := &BatchError{Phase: phase}
	for _, item := range batch.Items {
		if item.Err == nil {
			continue
		}
		be.Failures = append(be.Failures, FailureOf(item.Index, item.Key, item.Err))
		be.errs = append(be.errs, item.Err)
	}
	if len(be.Failures) == 0 {
		return nil
	}
	return be
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("[%d] %s: %s", f.Index, f.Key, f.Reason))
	}
	return fmt.Sprintf("%s failed for %d item(s): %s", e.Phase, len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	return e.errs
}
