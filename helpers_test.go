package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"audioembed/cmd"
	"audioembed/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestHelper boots the real router around a stub model and transcoder
type TestHelper struct {
	Server     *httptest.Server
	App        *cmd.App
	ScratchDir string
}

// NewTestHelper creates a server backed by a fresh scratch directory. env
// entries are applied before the app reads its configuration.
func NewTestHelper(t *testing.T, env map[string]string) *TestHelper {
	t.Helper()
	gin.SetMode(gin.TestMode)

	scratchDir := t.TempDir()
	t.Setenv("SCRATCH_DIR", scratchDir)
	for k, v := range env {
		t.Setenv(k, v)
	}

	app, err := cmd.NewApp(stubModel{}, stubTranscoder{})
	require.NoError(t, err)

	server := httptest.NewServer(cmd.NewRouter(app))
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})

	return &TestHelper{Server: server, App: app, ScratchDir: scratchDir}
}

// stubTranscoder "decodes" by prefixing the input with a WAV header
type stubTranscoder struct{}

func (stubTranscoder) Transcode(ctx context.Context, job types.TranscodeJob) error {
	in, err := os.ReadFile(job.InputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(job.OutputPath, append(wavFile("decoded"), in...), 0o600)
}

// stubModel returns a 1x2 embedding of the input length and byte sum
type stubModel struct{}

func (stubModel) Predict(ctx context.Context, canonical []byte) (types.Embedding, error) {
	return embeddingOf(canonical), nil
}

func embeddingOf(b []byte) types.Embedding {
	var sum float32
	for _, c := range b {
		sum += float32(c)
	}
	return types.Embedding{{float32(len(b)), sum}}
}

func wavFile(marker string) []byte {
	return append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), marker...)
}

func mp3File(marker string) []byte {
	return append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), marker...)
}

// audioFile builds test content whose format follows the file name
func audioFile(name string) []byte {
	switch {
	case strings.HasSuffix(name, ".wav"):
		return wavFile(name)
	case strings.HasSuffix(name, ".mp3"):
		return mp3File(name)
	}
	return []byte("not audio " + name)
}

// PostAudio uploads the named files as "audio" parts and decodes the response
func (h *TestHelper) PostAudio(t *testing.T, requestID string, names ...string) (*http.Response, types.PredictResponse) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := mw.CreateFormFile("audio", name)
		require.NoError(t, err)
		_, err = part.Write(audioFile(name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.Server.URL+"/model/predict", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	return h.do(t, req)
}

// PostURLs submits urls as repeated query parameters
func (h *TestHelper) PostURLs(t *testing.T, urls ...string) (*http.Response, types.PredictResponse) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, h.Server.URL+"/model/predict", nil)
	require.NoError(t, err)
	q := req.URL.Query()
	for _, u := range urls {
		q.Add("url", u)
	}
	req.URL.RawQuery = q.Encode()
	return h.do(t, req)
}

func (h *TestHelper) do(t *testing.T, req *http.Request) (*http.Response, types.PredictResponse) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out types.PredictResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return resp, out
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(h.Server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil {
		require.NoError(t, json.Unmarshal(body, target))
	}
	return resp
}

// ConnectWebSocket connects to a WebSocket endpoint
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

// AssertScratchEmpty checks that no request left files behind
func (h *TestHelper) AssertScratchEmpty(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(h.ScratchDir)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directory should be empty")
}
