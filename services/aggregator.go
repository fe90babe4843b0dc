package services

import (
	"errors"
	"fmt"

	"audioembed/types"
)

// Policy decides what happens when some items of a batch have no embedding
type Policy string

const (
	// PolicyAllOrNothing fails the request if any item failed, listing every failure
	PolicyAllOrNothing Policy = "all-or-nothing"
	// PolicyPartial returns embeddings for the items that succeeded, nil for the
	// rest, plus the failure list. It still fails if nothing succeeded.
	PolicyPartial Policy = "partial"
)

// ParsePolicy maps a config value onto a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAllOrNothing, "":
		return PolicyAllOrNothing, nil
	case PolicyPartial:
		return PolicyPartial, nil
	}
	return "", fmt.Errorf("unknown aggregation policy %q", s)
}

var errMissingResult = errors.New("missing result")

// Result is the ordered output of one request
type Result struct {
	RequestID  string
	Embeddings []types.Embedding
	Failures   []types.ItemFailure
}

// Partial reports whether some items are missing from Embeddings
func (r *Result) Partial() bool {
	return len(r.Failures) > 0
}

// Aggregator reassembles per-item outputs into submission order
type Aggregator struct {
	policy Policy
}

// NewAggregator creates an aggregator applying policy to every batch
func NewAggregator(policy Policy) *Aggregator {
	return &Aggregator{policy: policy}
}

// Policy returns the policy in force
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate returns embeddings ordered by batch index
func (a *Aggregator) Aggregate(batch *types.Batch) (*Result, error) {
	embeddings := make([]types.Embedding, batch.Len())
	succeeded := 0
	for _, item := range batch.Items {
		if item.Err == nil && item.Embedding == nil {
			item.Err = types.NewError(types.KindModelInference, item.Index, item.Key, errMissingResult)
		}
		if item.Err != nil {
			continue
		}
		embeddings[item.Index] = item.Embedding
		succeeded++
	}

	be := types.NewBatchError(string(types.PhaseAggregate), batch)
	if be == nil {
		return &Result{RequestID: batch.RequestID, Embeddings: embeddings}, nil
	}
	if a.policy == PolicyPartial && succeeded > 0 {
		return &Result{RequestID: batch.RequestID, Embeddings: embeddings, Failures: be.Failures}, nil
	}
	return nil, be
}
