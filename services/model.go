package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"audioembed/types"

	"github.com/sony/gobreaker"
)

// Model is the external acoustic model. One instance is built at startup
// and shared by every request for the life of the process.
type Model interface {
	Predict(ctx context.Context, canonical []byte) (types.Embedding, error)
}

// RemoteModel calls a model-serving endpoint over HTTP. It is safe for concurrent use.
type RemoteModel struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewRemoteModel creates a client for the model served at endpoint
func NewRemoteModel(endpoint string, timeout time.Duration) *RemoteModel {
	st := gobreaker.Settings{
		Name:        "model",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// a cancelled request says nothing about the model's health
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &RemoteModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cb:       gobreaker.NewCircuitBreaker(st),
	}
}

type remotePrediction struct {
	Embedding types.Embedding `json:"embedding"`
}

// Predict posts canonical WAV bytes and decodes the returned embedding
func (m *RemoteModel) Predict(ctx context.Context, canonical []byte) (types.Embedding, error) {
	resp, err := m.cb.Execute(func() (interface{}, error) {
		return m.post(ctx, canonical)
	})
	if err != nil {
		return nil, err
	}
	return resp.(types.Embedding), nil
}

func (m *RemoteModel) post(ctx context.Context, canonical []byte) (types.Embedding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(canonical))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model endpoint returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var pred remotePrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(pred.Embedding) == 0 {
		return nil, errors.New("model returned an empty embedding")
	}
	return pred.Embedding, nil
}
