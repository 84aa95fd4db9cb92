package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	graphmem "github.com/soundprediction/graphmem"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/server/dto"
	"github.com/soundprediction/graphmem/pkg/types"
)

// RetrieveHandler handles read requests.
type RetrieveHandler struct {
	memory graphmem.GraphMem
}

// NewRetrieveHandler creates a retrieve handler.
func NewRetrieveHandler(memory graphmem.GraphMem) *RetrieveHandler {
	return &RetrieveHandler{memory: memory}
}

// Search handles POST /search.
func (h *RetrieveHandler) Search(c *gin.Context) {
	var req dto.SearchQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	results, err := h.memory.Search(c.Request.Context(), req.Query, searchConfigFrom(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "search_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.renderResults(c, results))
}

// GetMemory handles POST /get-memory: search seeded by the tail of a
// conversation.
func (h *RetrieveHandler) GetMemory(c *gin.Context) {
	var req dto.GetMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	parts := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts = append(parts, msg.Content)
	}
	query := strings.Join(parts, "\n")

	config := graphmem.NewDefaultSearchConfig()
	config.Filters = &types.SearchFilters{GroupIDs: []string{req.GroupID}}
	if req.MaxFacts > 0 {
		config.Limit = req.MaxFacts
	}

	results, err := h.memory.Search(c.Request.Context(), query, config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "search_failed", Message: err.Error()})
		return
	}

	rendered := h.renderResults(c, results)
	c.JSON(http.StatusOK, dto.GetMemoryResponse{Facts: rendered.Facts, Total: len(rendered.Facts)})
}

// GetEntityEdge handles GET /entity-edge/:uuid.
func (h *RetrieveHandler) GetEntityEdge(c *gin.Context) {
	edge, err := h.memory.GetEdge(c.Request.Context(), c.Param("uuid"))
	if errors.Is(err, driver.ErrEdgeNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "retrieval_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.factFrom(c, edge, nil))
}

// GetEpisodes handles GET /episodes/:group_id.
func (h *RetrieveHandler) GetEpisodes(c *gin.Context) {
	groupID := c.Param("group_id")
	lastN, err := strconv.Atoi(c.DefaultQuery("last_n", "10"))
	if err != nil || lastN <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "last_n must be a positive integer"})
		return
	}

	episodes, err := h.memory.GetEpisodes(c.Request.Context(), groupID, lastN)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "retrieval_failed", Message: err.Error()})
		return
	}

	out := make([]dto.EpisodeResult, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, dto.EpisodeResult{
			UUID:      ep.ID,
			GroupID:   ep.GroupID,
			Name:      ep.Name,
			Content:   ep.Content,
			Source:    string(ep.Source),
			ValidAt:   ep.ValidAt,
			CreatedAt: ep.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, dto.GetEpisodesResponse{Episodes: out, Total: len(out)})
}

func searchConfigFrom(req dto.SearchQuery) *types.SearchConfig {
	config := graphmem.NewDefaultSearchConfig()
	if req.MaxFacts > 0 {
		config.Limit = req.MaxFacts
	}
	if len(req.GroupIDs) > 0 {
		config.Filters = &types.SearchFilters{GroupIDs: req.GroupIDs}
	}
	config.CenterNodeID = req.CenterNodeUUID
	config.IncludeInvalidated = req.IncludeInvalidated
	if req.Reranker != "" {
		config.EdgeConfig = &types.EdgeSearchConfig{Reranker: req.Reranker}
		config.NodeConfig = &types.NodeSearchConfig{Reranker: req.Reranker}
	}
	return config
}

func (h *RetrieveHandler) renderResults(c *gin.Context, results *types.SearchResults) dto.SearchResults {
	out := dto.SearchResults{Total: results.Total}

	names := make(map[string]string, len(results.Nodes))
	for _, node := range results.Nodes {
		names[node.ID] = node.Name
		score := results.NodeScores[node.ID]
		out.Entities = append(out.Entities, dto.NodeResult{
			UUID:       node.ID,
			Name:       node.Name,
			EntityType: node.EntityType,
			Summary:    node.Summary,
			Score:      &score,
		})
	}
	for _, edge := range results.Edges {
		score := results.EdgeScores[edge.ID]
		fact := h.factFrom(c, edge, names)
		fact.Score = &score
		out.Facts = append(out.Facts, fact)
	}
	return out
}

// factFrom flattens an edge, resolving endpoint names from the result
// set or the graph.
func (h *RetrieveHandler) factFrom(c *gin.Context, edge *types.Edge, names map[string]string) dto.FactResult {
	resolve := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		if node, err := h.memory.GetNode(c.Request.Context(), id); err == nil && node != nil {
			return node.Name
		}
		return ""
	}
	var validAt *time.Time
	if !edge.ValidAt.IsZero() {
		v := edge.ValidAt
		validAt = &v
	}
	return dto.FactResult{
		UUID:         edge.ID,
		Fact:         edge.Fact,
		SourceName:   resolve(edge.SourceID),
		TargetName:   resolve(edge.TargetID),
		RelationType: edge.Name,
		ValidAt:      validAt,
		InvalidAt:    edge.InvalidAt,
		CreatedAt:    edge.CreatedAt,
	}
}
