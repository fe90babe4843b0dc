package cmd

import (
	"fmt"

	"audioembed/config"
	"audioembed/services"
	"audioembed/websocket"
)

// App bundles the process-wide collaborators. It is built once at startup;
// the model handle inside it is shared by every request.
type App struct {
	Pipeline *services.Pipeline
	Runner   services.ModelRunner
	Tracker  services.Tracker
	Hub      websocket.Hub
}

// NewApp wires the pipeline around model and transcoder using the environment configuration
func NewApp(model services.Model, transcoder services.Transcoder) (*App, error) {
	scratch, err := services.NewScratch(config.GetScratchDir())
	if err != nil {
		return nil, err
	}

	policy, err := services.ParsePolicy(config.GetAggregationPolicy())
	if err != nil {
		return nil, err
	}

	var runner services.ModelRunner
	switch config.GetModelConcurrency() {
	case config.ModelConcurrencySerial:
		runner = services.NewSerialRunner(model)
	default:
		runner = services.NewParallelRunner(model)
	}

	workers := config.GetWorkers()
	hub := websocket.NewHub()
	go hub.Run()
	tracker := services.NewTracker(256, hub)

	pipeline := services.NewPipeline(services.PipelineConfig{
		Resolver: services.NewResolver(nil, services.ResolverOptions{
			MaxItems:      config.GetMaxBatchItems(),
			FetchTimeout:  config.GetFetchTimeout(),
			MaxFetchBytes: config.GetMaxFetchBytes(),
			Workers:       workers,
		}),
		Dispatcher: services.NewDispatcher(services.NewNormalizer(scratch, transcoder), runner, workers),
		Aggregator: services.NewAggregator(policy),
		Scratch:    scratch,
		Tracker:    tracker,
		Timeout:    config.GetRequestTimeout(),
	})

	return &App{
		Pipeline: pipeline,
		Runner:   runner,
		Tracker:  tracker,
		Hub:      hub,
	}, nil
}

// newDefaultApp builds the app around the configured remote model and ffmpeg
func newDefaultApp() (*App, error) {
	endpoint := config.GetModelEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("MODEL_ENDPOINT must point at the embedding model server")
	}
	model := services.NewRemoteModel(endpoint, config.GetModelTimeout())
	return NewApp(model, services.NewFFmpegTranscoder(config.GetFFmpegPath()))
}

// Close releases process-wide resources
func (a *App) Close() {
	a.Runner.Close()
	a.Hub.Stop()
}
