package services

import (
	"context"
	"errors"
	"sync"

	"audioembed/types"
)

var errRunnerClosed = errors.New("model runner closed")

// ModelRunner is the calling discipline used to reach the shared Model
type ModelRunner interface {
	Run(ctx context.Context, job types.PredictJob) types.PredictResult
	Discipline() string
	Close()
}

// parallelRunner calls the model directly from the dispatcher's workers.
// Only use it with models that are safe for concurrent use.
type parallelRunner struct {
	model Model
}

// NewParallelRunner lets every pool worker call model concurrently
func NewParallelRunner(model Model) ModelRunner {
	return &parallelRunner{model: model}
}

func (r *parallelRunner) Run(ctx context.Context, job types.PredictJob) types.PredictResult {
	if err := ctx.Err(); err != nil {
		return types.PredictResult{Index: job.Index, Err: err}
	}
	emb, err := r.model.Predict(ctx, job.Input)
	return types.PredictResult{Index: job.Index, Embedding: emb, Err: err}
}

func (r *parallelRunner) Discipline() string { return "parallel" }

func (r *parallelRunner) Close() {}

type serialRequest struct {
	ctx   context.Context
	job   types.PredictJob
	reply chan types.PredictResult
}

// serialRunner owns the model on one dedicated goroutine. Every request in
// the process queues behind it, so the model never sees two calls at once.
type serialRunner struct {
	model    Model
	requests chan serialRequest
	done     chan struct{}
	once     sync.Once
}

// NewSerialRunner starts the dedicated model worker
func NewSerialRunner(model Model) ModelRunner {
	r := &serialRunner{
		model:    model,
		requests: make(chan serialRequest),
		done:     make(chan struct{}),
	}
	go r.worker()
	return r
}

func (r *serialRunner) worker() {
	for {
		select {
		case req := <-r.requests:
			res := types.PredictResult{Index: req.job.Index}
			if err := req.ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Embedding, res.Err = r.model.Predict(req.ctx, req.job.Input)
			}
			req.reply <- res
		case <-r.done:
			return
		}
	}
}

func (r *serialRunner) Run(ctx context.Context, job types.PredictJob) types.PredictResult {
	select {
	case <-r.done:
		return types.PredictResult{Index: job.Index, Err: errRunnerClosed}
	default:
	}

	req := serialRequest{ctx: ctx, job: job, reply: make(chan types.PredictResult, 1)}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return types.PredictResult{Index: job.Index, Err: ctx.Err()}
	case <-r.done:
		return types.PredictResult{Index: job.Index, Err: errRunnerClosed}
	}
	// once accepted, the worker always replies
	return <-req.reply
}

func (r *serialRunner) Discipline() string { return "serial" }

// Close stops the worker; later calls to Run fail
func (r *serialRunner) Close() {
	r.once.Do(func() { close(r.done) })
}
