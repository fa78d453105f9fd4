package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loopforge/strudel-api/internal/history"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/logger"
	"github.com/loopforge/strudel-api/internal/playback"
	"github.com/loopforge/strudel-api/internal/session"
)

// SessionHandler serves the stateful endpoints: generation into the shared
// history, playback control, and the auto-evolve toggle.
type SessionHandler struct {
	session *session.Session
}

func NewSessionHandler(s *session.Session) *SessionHandler {
	return &SessionHandler{session: s}
}

type SessionGenerateRequest struct {
	Prompt string `json:"prompt"`
}

type RecordResponse struct {
	ID     int64  `json:"id"`
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Code   string `json:"code"`
	Tempo  int    `json:"tempo,omitempty"`
}

func recordResponse(rec history.Record, index int) RecordResponse {
	return RecordResponse{
		ID:     rec.ID,
		Index:  index,
		Prompt: rec.Prompt,
		Code:   rec.Code,
		Tempo:  rec.Tempo,
	}
}

// Generate handles POST /api/session/generate. The result is appended to the
// history, becomes the active record, and starts playing blended over
// whatever is already sounding.
func (h *SessionHandler) Generate(c *gin.Context) {
	var req SessionGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, index, err := h.session.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":     recordResponse(rec, index),
		"request_id": c.GetString("request_id"),
	})
}

type PlayRequest struct {
	Index int `json:"index"`
}

// Play handles POST /api/session/play. Playback of a history record hushes
// the engine first, then evaluates the selected code.
func (h *SessionHandler) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := h.session.Play(c.Request.Context(), req.Index)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record": recordResponse(rec, req.Index),
	})
}

// Stop handles POST /api/session/stop. Silences the engine and disarms
// auto-evolve; the history is untouched.
func (h *SessionHandler) Stop(c *gin.Context) {
	h.session.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// Clear handles POST /api/session/clear. Stops playback and empties the
// history; any in-flight generation result will be discarded on arrival.
func (h *SessionHandler) Clear(c *gin.Context) {
	h.session.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

type EvolveRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// Evolve handles POST /api/session/evolve. Enabling requires an active,
// playing pattern; the interval must be one of the fixed choices. A request
// with enabled=false and a nonzero interval just reconfigures the period.
func (h *SessionHandler) Evolve(c *gin.Context) {
	var req EvolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var err error
	switch {
	case req.Enabled:
		err = h.session.EnableEvolve(req.IntervalSeconds)
	case req.IntervalSeconds != 0:
		err = h.session.SetEvolveInterval(req.IntervalSeconds)
	default:
		h.session.DisableEvolve()
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"evolve": h.session.Status().Evolve})
}

// History handles GET /api/session/history.
func (h *SessionHandler) History(c *gin.Context) {
	records := h.session.Store().Records()
	out := make([]RecordResponse, len(records))
	for i, rec := range records {
		out[i] = recordResponse(rec, i)
	}

	c.JSON(http.StatusOK, gin.H{
		"records":      out,
		"active_index": h.session.Store().ActiveIndex(),
	})
}

// Status handles GET /api/session/status.
func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

// writeError maps domain errors onto HTTP responses. Validation failures
// carry their message; upstream and engine failures return generic text with
// the detail left in the logs.
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyPrompt),
		errors.Is(err, session.ErrBadInterval),
		errors.Is(err, session.ErrNoSuchRecord),
		errors.Is(err, session.ErrNotPlaying):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSuperseded):
		// The user cleared the session mid-request; nothing was recorded.
		c.JSON(http.StatusConflict, gin.H{"error": "Session was cleared during generation"})
	case errors.Is(err, llm.ErrUpstream):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate pattern"})
	case errors.Is(err, playback.ErrEngine):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Audio engine unavailable"})
	default:
		logger.Error("Unclassified session error", err, logger.Fields{
			"request_id": c.GetString("request_id"),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
