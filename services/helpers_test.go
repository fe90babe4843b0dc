package services

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audioembed/types"

	"github.com/stretchr/testify/require"
)

// wavBytes builds a tiny RIFF/WAVE payload that carries a marker
func wavBytes(marker string) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	b.Write([]byte{0x24, 0x00, 0x00, 0x00})
	b.WriteString("WAVEfmt ")
	b.WriteString(marker)
	return b.Bytes()
}

func mp3Bytes(marker string) []byte {
	return append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), marker...)
}

// fakeTranscoder "decodes" by prefixing the input with a WAV header
type fakeTranscoder struct {
	maxDelay time.Duration
	failFor  map[int]bool
	noOutput map[int]bool

	mu    sync.Mutex
	paths []string
	calls atomic.Int64

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func (f *fakeTranscoder) Transcode(ctx context.Context, job types.TranscodeJob) error {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.paths = append(f.paths, job.InputPath, job.OutputPath)
	f.mu.Unlock()

	if err := sleepRandom(ctx, f.maxDelay); err != nil {
		return err
	}
	if f.failFor[job.Index] {
		return errors.New("ffmpeg exited with status 1: invalid data found when processing input")
	}
	if f.noOutput[job.Index] {
		return nil
	}
	in, err := os.ReadFile(job.InputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(job.OutputPath, append(wavBytes("decoded:"), in...), 0o600)
}

func (f *fakeTranscoder) seenPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// fakeModel returns an embedding derived only from the input bytes
type fakeModel struct {
	maxDelay time.Duration
	failOn   []byte

	calls       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func (m *fakeModel) Predict(ctx context.Context, canonical []byte) (types.Embedding, error) {
	m.calls.Add(1)
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	if err := sleepRandom(ctx, m.maxDelay); err != nil {
		return nil, err
	}
	if m.failOn != nil && bytes.Contains(canonical, m.failOn) {
		return nil, errors.New("inference backend rejected input")
	}
	return embeddingOf(canonical), nil
}

func embeddingOf(b []byte) types.Embedding {
	var sum float32
	for _, c := range b {
		sum += float32(c)
	}
	return types.Embedding{{float32(len(b)), sum}}
}

func sleepRandom(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(time.Duration(rand.Int63n(int64(max)))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type testPipeline struct {
	pipeline   *Pipeline
	scratch    *Scratch
	transcoder *fakeTranscoder
	model      *fakeModel
	runner     ModelRunner
}

type pipelineOptions struct {
	workers   int
	policy    Policy
	serial    bool
	timeout   time.Duration
	scratch   *Scratch
	tracker   Tracker
	model     *fakeModel
	transcode *fakeTranscoder
}

func newTestPipeline(t *testing.T, opts pipelineOptions) *testPipeline {
	t.Helper()

	scratch := opts.scratch
	if scratch == nil {
		var err error
		scratch, err = NewScratch(t.TempDir())
		require.NoError(t, err)
	}
	if opts.workers == 0 {
		opts.workers = 4
	}
	if opts.policy == "" {
		opts.policy = PolicyAllOrNothing
	}
	if opts.model == nil {
		opts.model = &fakeModel{}
	}
	if opts.transcode == nil {
		opts.transcode = &fakeTranscoder{}
	}

	var runner ModelRunner
	if opts.serial {
		runner = NewSerialRunner(opts.model)
	} else {
		runner = NewParallelRunner(opts.model)
	}
	t.Cleanup(runner.Close)

	p := NewPipeline(PipelineConfig{
		Resolver:   NewResolver(nil, ResolverOptions{MaxItems: 64, Workers: opts.workers}),
		Dispatcher: NewDispatcher(NewNormalizer(scratch, opts.transcode), runner, opts.workers),
		Aggregator: NewAggregator(opts.policy),
		Scratch:    scratch,
		Tracker:    opts.tracker,
		Timeout:    opts.timeout,
	})
	return &testPipeline{pipeline: p, scratch: scratch, transcoder: opts.transcode, model: opts.model, runner: runner}
}

func (tp *testPipeline) requireNoScratchFiles(t *testing.T) {
	t.Helper()
	files, err := tp.scratch.Files()
	require.NoError(t, err)
	require.Empty(t, files, "scratch directory should be empty")
}

func uploads(names ...string) types.Input {
	var in types.Input
	for _, name := range names {
		var data []byte
		switch {
		case strings.HasSuffix(name, ".mp3"):
			data = mp3Bytes(name)
		case strings.HasSuffix(name, ".wav"):
			data = wavBytes(name)
		default:
			data = []byte("plain text " + name)
		}
		in.Uploads = append(in.Uploads, types.Upload{Filename: name, Data: data})
	}
	return in
}
