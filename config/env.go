package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Model concurrency disciplines
const (
	ModelConcurrencyParallel = "parallel"
	ModelConcurrencySerial   = "serial"
)

// Aggregation policies
const (
	PolicyAllOrNothing = "all-or-nothing"
	PolicyPartial      = "partial"
)

var Env = map[string]string{
	"SCRATCH_DIR":        os.Getenv("SCRATCH_DIR"),
	"MODEL_ENDPOINT":     os.Getenv("MODEL_ENDPOINT"),
	"MODEL_CONCURRENCY":  os.Getenv("MODEL_CONCURRENCY"),
	"AGGREGATION_POLICY": os.Getenv("AGGREGATION_POLICY"),
	"FFMPEG_PATH":        os.Getenv("FFMPEG_PATH"),
}

func lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return Env[key]
}

// GetScratchDir returns the directory used for transient per-item files
func GetScratchDir() string {
	if dir := lookup("SCRATCH_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "audioembed-scratch")
}

// GetWorkers returns the per-request worker pool size
func GetWorkers() int {
	return getInt("WORKERS", runtime.NumCPU())
}

// GetModelEndpoint returns the URL of the model-serving endpoint
func GetModelEndpoint() string {
	return lookup("MODEL_ENDPOINT")
}

// GetModelTimeout bounds a single inference call
func GetModelTimeout() time.Duration {
	return getDuration("MODEL_TIMEOUT", 60*time.Second)
}

// GetModelConcurrency returns "parallel" or "serial"
func GetModelConcurrency() string {
	switch strings.ToLower(lookup("MODEL_CONCURRENCY")) {
	case ModelConcurrencySerial:
		return ModelConcurrencySerial
	default:
		return ModelConcurrencyParallel
	}
}

// GetAggregationPolicy returns "all-or-nothing" (default) or "partial"
func GetAggregationPolicy() string {
	switch strings.ToLower(lookup("AGGREGATION_POLICY")) {
	case PolicyPartial:
		return PolicyPartial
	default:
		return PolicyAllOrNothing
	}
}

// GetRequestTimeout is the deadline applied to a whole predict request
func GetRequestTimeout() time.Duration {
	return getDuration("REQUEST_TIMEOUT", 5*time.Minute)
}

// GetFetchTimeout bounds a single URL download
func GetFetchTimeout() time.Duration {
	return getDuration("FETCH_TIMEOUT", 30*time.Second)
}

// GetMaxFetchBytes caps the size of a downloaded audio file
func GetMaxFetchBytes() int64 {
	return int64(getInt("MAX_FETCH_BYTES", 100<<20))
}

// GetMaxBatchItems caps the number of items accepted in one request
func GetMaxBatchItems() int {
	return getInt("MAX_BATCH_ITEMS", 64)
}

// GetFFmpegPath returns the transcoder binary
func GetFFmpegPath() string {
	if p := lookup("FFMPEG_PATH"); p != "" {
		return p
	}
	return "ffmpeg"
}

// GetCORSOrigins lists the browser origins allowed to call the API and open
// progress streams. A single "*" allows any origin.
func GetCORSOrigins() []string {
	v := lookup("CORS_ORIGINS")
	if v == "" {
		v = "http://localhost:3000,http://localhost:5173"
	}
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LoadEnv loads environment variables from a .env file, searching up the directory tree.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return nil
}
