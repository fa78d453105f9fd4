package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/logger"
	"github.com/loopforge/strudel-api/internal/metrics"
	"github.com/loopforge/strudel-api/internal/prompt"
)

// GenerateHandler serves the stateless generation endpoint. It relays one
// prompt (optionally with the caller's current code as refinement context)
// and returns the cleaned Strudel source without touching session state.
type GenerateHandler struct {
	provider llm.Provider
	model    string
	sentry   *metrics.SentryMetrics
}

func NewGenerateHandler(provider llm.Provider, model string) *GenerateHandler {
	return &GenerateHandler{
		provider: provider,
		model:    model,
		sentry:   metrics.NewSentryMetrics(),
	}
}

type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	CurrentCode string `json:"currentCode"`
}

type GenerateResponse struct {
	Code      string `json:"code"`
	Tempo     int    `json:"tempo,omitempty"`
	RequestID string `json:"request_id"`
}

// Generate handles POST /api/generate.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}

	messages := prompt.Compose(req.Prompt, req.CurrentCode)

	startTime := time.Now()
	resp, err := h.provider.Generate(c.Request.Context(), &llm.Request{
		Model:    h.model,
		Messages: messages,
	})
	duration := time.Since(startTime)
	h.sentry.RecordGenerationDuration(c.Request.Context(), duration, err == nil)

	if err != nil {
		// Upstream detail stays in the logs; the caller gets a generic
		// message.
		logger.Error("Stateless generation failed", err, logger.Fields{
			"request_id": c.GetString("request_id"),
			"model":      h.model,
		})
		metrics.GenerationsTotal.WithLabelValues("user", "upstream_error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate pattern"})
		return
	}

	metrics.GenerationsTotal.WithLabelValues("user", "success").Inc()
	metrics.GenerationDuration.Observe(duration.Seconds())
	h.sentry.RecordTokenUsage(c.Request.Context(), h.model, resp.Usage.TotalTokens, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	c.JSON(http.StatusOK, GenerateResponse{
		Code:      resp.Code,
		Tempo:     llm.ExtractTempo(resp.Code),
		RequestID: c.GetString("request_id"),
	})
}
