package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loopforge/strudel-api/internal/history"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/playback"
	"github.com/loopforge/strudel-api/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	generateFunc func(ctx context.Context, request *llm.Request) (*llm.Response, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, request *llm.Request) (*llm.Response, error) {
	if p.generateFunc != nil {
		return p.generateFunc(ctx, request)
	}
	return &llm.Response{Code: "setcpm(132)\nstack(s(\"bd!4\")).play()"}, nil
}

type stubEngine struct{}

func (stubEngine) Initialize(_ context.Context) error { return nil }

func (stubEngine) Evaluate(_ context.Context, _ string) error { return nil }

func (stubEngine) Hush() {}

func newTestRouter(provider llm.Provider) (*gin.Engine, *session.Session) {
	store := history.New()
	controller := playback.NewController(func() playback.Engine { return stubEngine{} })
	sess := session.New(provider, "test-model", store, controller, nil)

	router := gin.New()
	router.GET("/health", HealthCheck)

	generateHandler := NewGenerateHandler(provider, "test-model")
	router.POST("/api/generate", generateHandler.Generate)

	sessionHandler := NewSessionHandler(sess)
	group := router.Group("/api/session")
	group.POST("/generate", sessionHandler.Generate)
	group.POST("/play", sessionHandler.Play)
	group.POST("/stop", sessionHandler.Stop)
	group.POST("/clear", sessionHandler.Clear)
	group.POST("/evolve", sessionHandler.Evolve)
	group.GET("/history", sessionHandler.History)
	group.GET("/status", sessionHandler.Status)

	metricsHandler := NewMetricsHandler("test", sess)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	return router, sess
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGenerateEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodPost, "/api/generate", gin.H{"prompt": "dark techno"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Code, "setcpm(132)")
	assert.Equal(t, 132, resp.Tempo)
}

func TestGenerateEndpointMissingPrompt(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodPost, "/api/generate", gin.H{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Prompt is required")
}

func TestGenerateEndpointUpstreamError(t *testing.T) {
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			return nil, fmt.Errorf("%w: status 500", llm.ErrUpstream)
		},
	}
	router, _ := newTestRouter(provider)

	w := doJSON(t, router, http.MethodPost, "/api/generate", gin.H{"prompt": "dark techno"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	// Generic message only; upstream detail stays server-side.
	assert.Contains(t, w.Body.String(), "Failed to generate pattern")
	assert.NotContains(t, w.Body.String(), "status 500")
}

func TestSessionGenerateAndHistory(t *testing.T) {
	router, sess := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": "dark techno"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sess.Store().Len())
	assert.True(t, sess.Playing())

	w = doJSON(t, router, http.MethodGet, "/api/session/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Records     []RecordResponse `json:"records"`
		ActiveIndex int              `json:"active_index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, 0, body.ActiveIndex)
	assert.Equal(t, "dark techno", body.Records[0].Prompt)
}

func TestSessionGenerateEmptyPrompt(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionPlayAndStop(t *testing.T) {
	router, sess := newTestRouter(&stubProvider{})

	doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": "one"})
	doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": "two"})

	w := doJSON(t, router, http.MethodPost, "/api/session/play", gin.H{"index": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sess.Store().ActiveIndex())

	w = doJSON(t, router, http.MethodPost, "/api/session/play", gin.H{"index": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/session/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sess.Playing())
	assert.Equal(t, 2, sess.Store().Len())
}

func TestSessionClear(t *testing.T) {
	router, sess := newTestRouter(&stubProvider{})

	doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": "one"})
	w := doJSON(t, router, http.MethodPost, "/api/session/clear", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sess.Store().Len())
	assert.False(t, sess.Playing())
}

func TestSessionEvolveEndpoint(t *testing.T) {
	router, sess := newTestRouter(&stubProvider{})

	// Arming without playback is a client error.
	w := doJSON(t, router, http.MethodPost, "/api/session/evolve", gin.H{"enabled": true, "interval_seconds": 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	doJSON(t, router, http.MethodPost, "/api/session/generate", gin.H{"prompt": "seed"})

	w = doJSON(t, router, http.MethodPost, "/api/session/evolve", gin.H{"enabled": true, "interval_seconds": 90})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/session/evolve", gin.H{"enabled": true, "interval_seconds": 60})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sess.Scheduler().Enabled())

	w = doJSON(t, router, http.MethodPost, "/api/session/evolve", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sess.Scheduler().Enabled())
}

func TestSessionStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodGet, "/api/session/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Playing)
	assert.Equal(t, -1, status.ActiveIndex)
	assert.Equal(t, "disarmed", status.Evolve.State)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubProvider{})

	w := doJSON(t, router, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.NotEmpty(t, resp.System.GoVersion)
}
