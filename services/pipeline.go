package services

import (
	"context"
	"errors"
	"log"
	"time"

	"audioembed/types"

	"github.com/google/uuid"
)

// Pipeline is the single entry point that turns request input into ordered
// embeddings. One submission and many submissions take the same path.
type Pipeline struct {
	resolver   *Resolver
	dispatcher *Dispatcher
	aggregator *Aggregator
	scratch    *Scratch
	tracker    Tracker
	timeout    time.Duration
}

// PipelineConfig wires the pipeline's collaborators. Tracker is optional.
type PipelineConfig struct {
	Resolver   *Resolver
	Dispatcher *Dispatcher
	Aggregator *Aggregator
	Scratch    *Scratch
	Tracker    Tracker
	Timeout    time.Duration
}

// NewPipeline creates a pipeline from its collaborators
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		resolver:   cfg.Resolver,
		dispatcher: cfg.Dispatcher,
		aggregator: cfg.Aggregator,
		scratch:    cfg.Scratch,
		tracker:    cfg.Tracker,
		timeout:    cfg.Timeout,
	}
}

// Scratch returns the scratch area shared by all requests
func (p *Pipeline) Scratch() *Scratch {
	return p.scratch
}

// Dispatcher returns the dispatcher running both phases
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Aggregator returns the aggregator applying the result policy
func (p *Pipeline) Aggregator() *Aggregator {
	return p.aggregator
}

// Run resolves input, normalizes and embeds every item, and returns the
// embeddings in submission order. An empty requestID gets a generated one.
// progress may be nil.
func (p *Pipeline) Run(ctx context.Context, requestID string, input types.Input, progress types.ProgressFunc) (*Result, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if p.tracker != nil {
		if err := p.tracker.Start(requestID, len(input.Uploads)+len(input.URLs)); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	res, err := p.run(ctx, requestID, input, p.observer(progress))
	p.finish(requestID, res, err)

	if err != nil {
		log.Printf("Request %s failed after %s: %v", requestID, time.Since(start), err)
	} else {
		log.Printf("Request %s completed processing in %s", requestID, time.Since(start))
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, requestID string, input types.Input, observe types.ProgressFunc) (*Result, error) {
	batch, err := p.resolver.Resolve(ctx, requestID, input)
	if batch == nil {
		return nil, err
	}
	defer p.sweep(batch)
	if err != nil && p.aggregator.Policy() == PolicyAllOrNothing {
		return nil, err
	}

	p.setPhase(requestID, types.PhaseNormalize, batch.Len())
	if err := p.dispatcher.NormalizeAll(ctx, batch, observe); err != nil && p.aggregator.Policy() == PolicyAllOrNothing {
		return nil, err
	}

	p.setPhase(requestID, types.PhasePredict, batch.Len())
	// item failures stay on the items; the aggregator applies the policy
	_ = p.dispatcher.PredictAll(ctx, batch, observe)

	p.setPhase(requestID, types.PhaseAggregate, batch.Len())
	return p.aggregator.Aggregate(batch)
}

// sweep releases any scratch id still attached to an item. The normalizer
// already releases its own files; this covers every other way out of run.
func (p *Pipeline) sweep(batch *types.Batch) {
	for _, item := range batch.Items {
		if item.ScratchID == "" {
			continue
		}
		if err := p.scratch.Release(item.ScratchID); err != nil {
			log.Printf("Request %s: failed to release scratch files for %s: %v", batch.RequestID, item.Key, err)
		}
	}
}

func (p *Pipeline) observer(progress types.ProgressFunc) types.ProgressFunc {
	return func(ev types.ProgressEvent) {
		if p.tracker != nil {
			p.tracker.Observe(ev)
		}
		if progress != nil {
			progress(ev)
		}
	}
}

func (p *Pipeline) setPhase(requestID string, phase types.Phase, total int) {
	if p.tracker != nil {
		p.tracker.SetPhase(requestID, phase, total)
	}
}

func (p *Pipeline) finish(requestID string, res *Result, err error) {
	if p.tracker == nil {
		return
	}
	switch {
	case err != nil:
		var be *types.BatchError
		var failures []types.ItemFailure
		if errors.As(err, &be) {
			failures = be.Failures
		}
		p.tracker.Finish(requestID, types.RequestStatusFailed, err.Error(), failures)
	case res.Partial():
		p.tracker.Finish(requestID, types.RequestStatusPartial, "", res.Failures)
	default:
		p.tracker.Finish(requestID, types.RequestStatusCompleted, "", nil)
	}
}
