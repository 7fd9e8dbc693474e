package transform_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testAPIKey = "sk-test"

// fakeService is an httptest server that records every request body it
// receives and answers with a configurable handler.
type fakeService struct {
	server *httptest.Server

	mu     sync.Mutex
	paths  []string
	bodies [][]byte
}

func newFakeService(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *fakeService {
	t.Helper()

	service := &fakeService{}
	service.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		service.mu.Lock()
		service.paths = append(service.paths, r.URL.Path)
		service.bodies = append(service.bodies, body)
		service.mu.Unlock()

		respond(w, r)
	}))
	t.Cleanup(service.server.Close)

	return service
}

// baseURL is the OpenAI-style base URL of the fake service.
func (f *fakeService) baseURL() string {
	return f.server.URL + "/v1"
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.bodies)
}

func (f *fakeService) lastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paths[len(f.paths)-1]
}

// lastBody decodes the most recent request body into a generic map.
func (f *fakeService) lastBody(t *testing.T) map[string]any {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.bodies, "no request received")

	var payload map[string]any

	require.NoError(t, json.Unmarshal(f.bodies[len(f.bodies)-1], &payload))

	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func chatReply(content string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}
}

func apiError(status int, message string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, map[string]any{
			"error": map[string]any{"message": message, "type": "server_error"},
		})
	}
}

func audioReply(contentType string, data []byte) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// upperNormalizer is a trivial Normalizer used to observe that normalization ran.
type upperNormalizer struct{}

func (upperNormalizer) Normalize(text string) string {
	if text == "[skip]" {
		return ""
	}

	return "<" + text + ">"
}
