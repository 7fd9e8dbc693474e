package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/feed"
	"github.com/book-expert/narrator/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mp3Data = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 60)...)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "emma_audiobook.mp3"), mp3Data, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("secret"), 0o600))

	log, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	srv, err := server.New(dir, feed.Options{Title: "Books", BaseURL: "http://books.test"}, log)
	require.NoError(t, err)

	return srv, dir
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, http.NoBody))

	return recorder
}

func TestServer_Feed(t *testing.T) {
	t.Parallel()

	srv, dir := newTestServer(t)
	assert.FileExists(t, filepath.Join(dir, feed.FileName))

	for _, path := range []string{"/", "/feed", "/feed.xml"} {
		recorder := get(t, srv.Handler(), path)
		require.Equal(t, http.StatusOK, recorder.Code, path)
		assert.Equal(t, "application/rss+xml; charset=utf-8", recorder.Header().Get("Content-Type"))
		assert.Contains(t, recorder.Body.String(), "http://books.test/audio/emma_audiobook.mp3")
	}
}

func TestServer_Audio(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	recorder := get(t, srv.Handler(), "/audio/emma_audiobook.mp3")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/mpeg", recorder.Header().Get("Content-Type"))
	assert.Equal(t, mp3Data, recorder.Body.Bytes())

	for _, path := range []string{
		"/audio/secret.txt",
		"/audio/missing_audiobook.mp3",
		"/audio/..%2Fsecret.txt",
		"/audio/podcast.xml",
	} {
		assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), path).Code, path)
	}
}

func TestServer_AudioRange(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	request, err := http.NewRequest(http.MethodGet, httpServer.URL+"/audio/emma_audiobook.mp3", http.NoBody)
	require.NoError(t, err)
	request.Header.Set("Range", "bytes=0-3")

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, mp3Data[:4], body)
}

func TestServer_WatchRebuildsFeed(t *testing.T) {
	t.Parallel()

	srv, dir := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- srv.Watch(ctx)
	}()

	// The file is rewritten on every tick so a write lands after the watch is registered.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "dune_audiobook.mp3"), mp3Data, 0o600)

		return strings.Contains(get(t, srv.Handler(), "/feed").Body.String(), "dune_audiobook.mp3")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-errChan)
}
