package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	graphmem "github.com/soundprediction/graphmem"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/server/dto"
	"github.com/soundprediction/graphmem/pkg/telemetry"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
	"github.com/soundprediction/graphmem/pkg/worker"
)

// IngestHandler handles write requests.
type IngestHandler struct {
	memory    graphmem.GraphMem
	graph     driver.GraphDriver
	worker    *worker.Worker
	telemetry *telemetry.Recorder
}

// NewIngestHandler creates an ingest handler. The worker may be nil;
// messages are then ingested synchronously.
func NewIngestHandler(memory graphmem.GraphMem, graph driver.GraphDriver, w *worker.Worker, recorder *telemetry.Recorder) *IngestHandler {
	return &IngestHandler{memory: memory, graph: graph, worker: w, telemetry: recorder}
}

// AddMessages handles POST /ingest/messages.
func (h *IngestHandler) AddMessages(c *gin.Context) {
	var req dto.AddMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := utils.ValidateGroupID(req.GroupID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_group_id", Message: err.Error()})
		return
	}

	episodes := make([]types.Episode, 0, len(req.Messages))
	for _, msg := range req.Messages {
		episode := types.Episode{
			ID:      utils.GenerateUUID(),
			Content: fmt.Sprintf("%s: %s", msg.Role, msg.Content),
			Source:  types.MessageSource,
			GroupID: req.GroupID,
		}
		if msg.Timestamp != nil {
			episode.Reference = *msg.Timestamp
		} else if req.Reference != nil {
			episode.Reference = *req.Reference
		}
		episodes = append(episodes, episode)
	}

	h.telemetry.Capture("messages_ingested", map[string]interface{}{"count": len(episodes)})

	if h.worker != nil {
		taskIDs := make([]string, 0, len(episodes))
		for _, episode := range episodes {
			id, err := h.worker.Enqueue(c.Request.Context(), episode)
			if err != nil {
				c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "enqueue_failed", Message: err.Error()})
				return
			}
			if id != "" {
				taskIDs = append(taskIDs, id)
			}
		}
		c.JSON(http.StatusAccepted, dto.IngestResponse{
			Success: true,
			Message: "messages queued for processing",
			Queued:  len(taskIDs),
			TaskIDs: taskIDs,
		})
		return
	}

	results, err := h.memory.Add(c.Request.Context(), episodes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "ingestion_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.IngestResponse{
		Success: true,
		Message: fmt.Sprintf("ingested %d episodes", len(results)),
	})
}

// AddEntityNode handles POST /ingest/entity.
func (h *IngestHandler) AddEntityNode(c *gin.Context) {
	var req dto.AddEntityNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := utils.ValidateGroupID(req.GroupID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_group_id", Message: err.Error()})
		return
	}

	now := utils.UTCNow()
	node := &types.Node{
		ID:         utils.GenerateUUID(),
		Name:       req.Name,
		Type:       types.EntityNodeType,
		GroupID:    req.GroupID,
		EntityType: req.EntityType,
		Summary:    req.Summary,
		Attributes: req.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.graph.UpsertNode(c.Request.Context(), node); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "persist_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.IngestResponse{Success: true, NodeUUID: node.ID})
}

// ClearData handles DELETE /ingest/clear.
func (h *IngestHandler) ClearData(c *gin.Context) {
	var req dto.ClearDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	for _, groupID := range req.GroupIDs {
		if err := h.memory.ClearGroup(c.Request.Context(), groupID); err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "clear_failed", Message: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, dto.IngestResponse{
		Success: true,
		Message: fmt.Sprintf("cleared %d groups", len(req.GroupIDs)),
	})
}
