package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"audioembed/types"

	"golang.org/x/sync/errgroup"
)

// Dispatcher runs the normalize and predict phases over a batch. Each phase
// fans out over at most `workers` goroutines and joins before returning.
// Units never share state: every result is written back to the item at the
// job's batch index.
type Dispatcher struct {
	normalizer *Normalizer
	runner     ModelRunner
	workers    int
}

// NewDispatcher creates a dispatcher with a bounded worker pool
func NewDispatcher(normalizer *Normalizer, runner ModelRunner, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		normalizer: normalizer,
		runner:     runner,
		workers:    workers,
	}
}

// Workers returns the pool size used by each phase
func (d *Dispatcher) Workers() int {
	return d.workers
}

// NormalizeAll normalizes every item that has not already failed. All
// failures are recorded on their items and returned together as a
// *types.BatchError.
func (d *Dispatcher) NormalizeAll(ctx context.Context, batch *types.Batch, progress types.ProgressFunc) error {
	start := time.Now()
	tracker := newPhaseProgress(batch, types.PhaseNormalize, batch.Len(), progress)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, item := range batch.Items {
		g.Go(func() error {
			switch {
			case item.Err != nil:
				// failed while resolving; keep that error
			case ctx.Err() != nil:
				item.Err = itemError(types.KindTranscode, item, ctx.Err())
			default:
				if err := d.normalizer.Normalize(ctx, item); err != nil {
					item.Err = err
				}
			}
			tracker.itemDone(item)
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("Request %s: normalized %d item(s) in %s", batch.RequestID, batch.Len(), time.Since(start))
	if be := types.NewBatchError(string(types.PhaseNormalize), batch); be != nil {
		return be
	}
	return nil
}

// PredictAll runs the model on every item that has canonical audio and no error
func (d *Dispatcher) PredictAll(ctx context.Context, batch *types.Batch, progress types.ProgressFunc) error {
	start := time.Now()

	var jobs []types.PredictJob
	for _, item := range batch.Items {
		if item.Err == nil && item.Canonical != nil {
			jobs = append(jobs, types.PredictJob{Index: item.Index, Input: item.Canonical})
		}
	}
	tracker := newPhaseProgress(batch, types.PhasePredict, len(jobs), progress)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, job := range jobs {
		g.Go(func() error {
			res := d.runner.Run(ctx, job)
			item := batch.Items[res.Index]
			if res.Err != nil {
				item.Err = itemError(types.KindModelInference, item, res.Err)
			} else {
				item.Embedding = res.Embedding
			}
			tracker.itemDone(item)
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("Request %s: predicted %d item(s) in %s (%s)", batch.RequestID, len(jobs), time.Since(start), d.runner.Discipline())
	if be := types.NewBatchError(string(types.PhasePredict), batch); be != nil {
		return be
	}
	return nil
}

// phaseProgress counts finished units and forwards events to the observer
type phaseProgress struct {
	batch    *types.Batch
	phase    types.Phase
	total    int
	done     atomic.Int64
	progress types.ProgressFunc
}

func newPhaseProgress(batch *types.Batch, phase types.Phase, total int, progress types.ProgressFunc) *phaseProgress {
	return &phaseProgress{batch: batch, phase: phase, total: total, progress: progress}
}

func (p *phaseProgress) itemDone(item *types.AudioItem) {
	done := p.done.Add(1)
	if p.progress == nil {
		return
	}
	p.progress(types.ProgressEvent{
		RequestID: p.batch.RequestID,
		Phase:     p.phase,
		Index:     item.Index,
		Key:       item.Key,
		Done:      int(done),
		Total:     p.total,
		Err:       item.Err,
	})
}
