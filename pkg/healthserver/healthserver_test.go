package healthserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ model string }

func (s stubProvider) ModelName() string { return s.model }

func newTestMux(provider StatusProvider) *http.ServeMux {
	srv := New("127.0.0.1:0", "ollama", provider)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return mux
}

func TestHealthz(t *testing.T) {
	mux := newTestMux(stubProvider{model: "llama3.2"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "ollama", payload["backend"])
	assert.Equal(t, "llama3.2", payload["model"])
}

func TestHealthzWithoutProvider(t *testing.T) {
	mux := newTestMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	_, hasModel := payload["model"]
	assert.False(t, hasModel)
}

func TestHealthzRejectsPost(t *testing.T) {
	mux := newTestMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	mux := newTestMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newTestMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
