//go:build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhdinh03/Download-Video/api"
	"github.com/nhdinh03/Download-Video/internal/app"
	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/internal/infrastructure"
)

const instagramURL = "https://www.instagram.com/reel/Cx1abcDEF/"

// fakeExtractor answers the version probe, prints preview fields for --print
// invocations and otherwise writes a small file to the -o path.
const fakeExtractor = `#!/bin/sh
case "$1" in --version|-version) echo "2024.01.01"; exit 0;; esac
out=""
preview=0
prev=""
for a in "$@"; do
  [ "$prev" = "-o" ] && out="$a"
  [ "$a" = "--print" ] && preview=1
  prev="$a"
done
if [ "$preview" = 1 ]; then
  echo "Integration clip"
  echo "https://scontent.cdninstagram.com/v/cover.jpg"
  echo "https://scontent.cdninstagram.com/v/clip.mp4"
  exit 0
fi
echo "[instagram] Extracting URL"
echo "[download]  25.0% of 1.00MiB at 1.00MiB/s ETA 00:03"
echo "[download] 100.0% of 1.00MiB at 1.00MiB/s ETA 00:00"
printf 'fake video' > "$out"
`

func setupTestServer(t *testing.T) (*httptest.Server, afero.Fs, string) {
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor is a shell script")
	}
	log := zaptest.NewLogger(t)

	binDir := t.TempDir()
	extractor := filepath.Join(binDir, "yt-dlp")
	require.NoError(t, os.WriteFile(extractor, []byte(fakeExtractor), 0755))

	config := domain.DefaultConfig()
	config.Tools.ExtractorBinary = extractor
	config.Tools.ReencoderBinary = extractor
	config.Download.ScratchDir = filepath.Join(t.TempDir(), "scratch")
	config.Download.RetryBackoff = 10 * time.Millisecond

	registry, err := domain.NewPlatformRegistry(nil)
	require.NoError(t, err)

	fs := afero.NewOsFs()
	tempFiles, err := infrastructure.NewTempFileManager(fs, config.Download.ScratchDir, config.Download.FileExtension, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	pool := app.NewWorkerPool(2, 4, log)
	t.Cleanup(func() {
		pool.Shutdown(context.Background())
		cancel()
	})

	manager := app.NewDownloadManager(
		ctx,
		registry,
		infrastructure.NewProcessRunner(log),
		infrastructure.NewToolProbe(config.Tools.ProbeTimeout, config.Tools.ProbeTTL, log),
		tempFiles,
		infrastructure.NewExtractorArgs(infrastructure.ExtractorOptions{
			Binary:          config.Tools.ExtractorBinary,
			ReencoderBinary: config.Tools.ReencoderBinary,
		}),
		pool,
		app.NewRetryController(app.RetryPolicy{MaxAttempts: 2, Backoff: config.Download.RetryBackoff}, log),
		app.NewManagerConfig(config),
		log,
	)
	reclaimer := app.NewReclaimer(tempFiles, config.Download.Retention, config.Download.ReclaimInterval, log)

	router := api.SetupRouter(manager, tempFiles, reclaimer, config.Server.CORSOrigins, log)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, fs, config.Download.ScratchDir
}

func TestAPI_Preview(t *testing.T) {
	server, _, _ := setupTestServer(t)

	data, _ := json.Marshal(map[string]string{"url": instagramURL})
	resp, err := http.Post(server.URL+"/api/instagram/preview", "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.PreviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Integration clip", result.Title)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/cover.jpg", result.ThumbnailURL)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/clip.mp4", result.DirectVideoURL)
}

func TestAPI_StreamThenRetrieve(t *testing.T) {
	server, fs, scratch := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/instagram/download/stream?url=" + url.QueryEscape(instagramURL))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var markers []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
			markers = append(markers, line)
		}
	}
	require.NoError(t, scanner.Err())
	require.Len(t, markers, 3)
	require.Equal(t, []string{"PROGRESS_25", "PROGRESS_100"}, markers[:2])
	require.True(t, strings.HasPrefix(markers[2], "DONE_"), markers[2])
	name := strings.TrimPrefix(markers[2], "DONE_")

	file, err := http.Get(server.URL + "/api/instagram/download?filename=" + url.QueryEscape(name))
	require.NoError(t, err)
	body, err := io.ReadAll(file.Body)
	file.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, file.StatusCode)
	assert.Equal(t, "fake video", string(body))
	assert.Contains(t, file.Header.Get("Content-Disposition"), name)

	// Served files are deleted
	exists, err := afero.Exists(fs, filepath.Join(scratch, name))
	require.NoError(t, err)
	assert.False(t, exists)

	again, err := http.Get(server.URL + "/files/" + name)
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestAPI_RejectsForeignURL(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/instagram/download/stream?url=" + url.QueryEscape("https://example.com/reel/1"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestAPI_Health(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp, err := http.Get(server.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, map[string]interface{}{"extractor": true, "reencoder": true}, health["tools"])
}
