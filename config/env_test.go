package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"SCRATCH_DIR", "WORKERS", "MODEL_CONCURRENCY", "AGGREGATION_POLICY", "REQUEST_TIMEOUT", "FFMPEG_PATH"} {
		t.Setenv(key, "")
	}
	Env["SCRATCH_DIR"] = ""
	Env["MODEL_CONCURRENCY"] = ""
	Env["AGGREGATION_POLICY"] = ""
	Env["FFMPEG_PATH"] = ""

	assert.Equal(t, filepath.Join(os.TempDir(), "audioembed-scratch"), GetScratchDir())
	assert.Greater(t, GetWorkers(), 0)
	assert.Equal(t, ModelConcurrencyParallel, GetModelConcurrency())
	assert.Equal(t, PolicyAllOrNothing, GetAggregationPolicy())
	assert.Equal(t, 5*time.Minute, GetRequestTimeout())
	assert.Equal(t, "ffmpeg", GetFFmpegPath())
}

func TestOverrides(t *testing.T) {
	t.Setenv("SCRATCH_DIR", "/var/tmp/embed")
	t.Setenv("WORKERS", "3")
	t.Setenv("MODEL_CONCURRENCY", "SERIAL")
	t.Setenv("AGGREGATION_POLICY", "partial")
	t.Setenv("REQUEST_TIMEOUT", "15s")
	t.Setenv("MAX_BATCH_ITEMS", "8")

	assert.Equal(t, "/var/tmp/embed", GetScratchDir())
	assert.Equal(t, 3, GetWorkers())
	assert.Equal(t, ModelConcurrencySerial, GetModelConcurrency())
	assert.Equal(t, PolicyPartial, GetAggregationPolicy())
	assert.Equal(t, 15*time.Second, GetRequestTimeout())
	assert.Equal(t, 8, GetMaxBatchItems())
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKERS", "-2")
	t.Setenv("FETCH_TIMEOUT", "soon")

	assert.Greater(t, GetWorkers(), 0)
	assert.Equal(t, 30*time.Second, GetFetchTimeout())
}

func TestLoadEnvFromParentDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("AUDIOEMBED_TEST_VALUE=from-dotenv\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	t.Setenv("AUDIOEMBED_TEST_VALUE", "")
	os.Unsetenv("AUDIOEMBED_TEST_VALUE")

	require.NoError(t, LoadEnv())
	assert.Equal(t, "from-dotenv", os.Getenv("AUDIOEMBED_TEST_VALUE"))
}

func TestCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "")
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, GetCORSOrigins())

	t.Setenv("CORS_ORIGINS", " https://a.example.com ,,https://b.example.com")
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, GetCORSOrigins())
}
