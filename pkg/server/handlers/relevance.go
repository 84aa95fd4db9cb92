package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/relevance"
	"github.com/soundprediction/graphmem/pkg/server/dto"
)

// RelevanceHandler records usefulness feedback for retrieved memories.
type RelevanceHandler struct {
	tracker *relevance.Tracker
	scorer  relevance.Scorer
}

// NewRelevanceHandler creates a relevance handler. The scorer may be
// nil; feedback then requires an explicit score.
func NewRelevanceHandler(tracker *relevance.Tracker, scorer relevance.Scorer) *RelevanceHandler {
	return &RelevanceHandler{tracker: tracker, scorer: scorer}
}

// Feedback handles POST /relevance/feedback.
func (h *RelevanceHandler) Feedback(c *gin.Context) {
	var req dto.RelevanceFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	obs := relevance.Observation{QueryID: req.QueryID, Method: relevance.MethodManual}
	switch {
	case req.Score != nil:
		obs.Score = *req.Score
	case h.scorer != nil && req.Query != "":
		var err error
		obs.Method = h.scorer.Method()
		obs.Score, err = h.scorer.Score(c.Request.Context(), req.Query, req.Memory, req.Response)
		if err != nil {
			obs.Score = relevance.NeutralScore
		}
	default:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "either score or query must be provided",
		})
		return
	}

	h.tracker.Observe(req.MemoryID, obs)
	record := h.tracker.Get(req.MemoryID)
	c.JSON(http.StatusOK, dto.RelevanceFeedbackResponse{
		MemoryID:       req.MemoryID,
		Score:          record.Score,
		UsageCount:     record.UsageCount,
		SuccessfulUses: record.SuccessfulUses,
	})
}

// GetRecord handles GET /relevance/:memory_id.
func (h *RelevanceHandler) GetRecord(c *gin.Context) {
	record := h.tracker.Get(c.Param("memory_id"))
	if record == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
