package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/centrality"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/server/dto"
)

// CentralityHandler serves centrality calculations with schema version
// negotiation on the Accept header.
type CentralityHandler struct {
	engine  *centrality.Engine
	storage *centrality.AtomicStorage
	graph   driver.GraphDriver
}

// NewCentralityHandler creates a centrality handler.
func NewCentralityHandler(engine *centrality.Engine, storage *centrality.AtomicStorage, graph driver.GraphDriver) *CentralityHandler {
	return &CentralityHandler{engine: engine, storage: storage, graph: graph}
}

// Calculate handles POST /centrality/calculate.
func (h *CentralityHandler) Calculate(c *gin.Context) {
	version, err := centrality.NegotiateVersion(c.GetHeader("Accept"))
	if err != nil {
		c.JSON(http.StatusNotAcceptable, dto.ErrorResponse{Error: "unsupported_version", Message: err.Error()})
		return
	}

	var req dto.CalculateCentralityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	metrics, err := h.engine.CalculateAll(c.Request.Context(), req.GroupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "calculation_failed", Message: err.Error()})
		return
	}

	response := dto.CalculateCentralityResponse{
		GroupID:       req.GroupID,
		SchemaVersion: version.String(),
		Scores:        renderMetrics(version, metrics),
	}
	if req.StoreResults && h.storage != nil {
		txID, err := h.storage.Store(c.Request.Context(), req.GroupID, metrics)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "store_failed", Message: err.Error()})
			return
		}
		response.TransactionID = txID
	}
	writeVersioned(c, version, response)
}

// GetScores handles GET /centrality/scores/:group_id, reading scores
// persisted by earlier calculations.
func (h *CentralityHandler) GetScores(c *gin.Context) {
	version, err := centrality.NegotiateVersion(c.GetHeader("Accept"))
	if err != nil {
		c.JSON(http.StatusNotAcceptable, dto.ErrorResponse{Error: "unsupported_version", Message: err.Error()})
		return
	}
	groupID := c.Param("group_id")

	records, _, _, err := h.graph.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		WHERE n.centrality_pagerank IS NOT NULL
		RETURN n.uuid AS uuid,
		       n.centrality_pagerank AS pagerank,
		       n.centrality_degree AS degree,
		       n.centrality_betweenness AS betweenness,
		       n.centrality_importance AS importance`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "retrieval_failed", Message: err.Error()})
		return
	}

	rows, _ := records.([]map[string]interface{})
	scores := make(map[string]map[string]interface{}, len(rows))
	for _, row := range rows {
		id, _ := row["uuid"].(string)
		if id == "" {
			continue
		}
		raw := make(map[string]float64, 4)
		for _, metric := range []string{"pagerank", "degree", "betweenness", "importance"} {
			if v, ok := toFloat(row[metric]); ok {
				raw[metric] = v
			}
		}
		scores[id] = centrality.FormatScores(version, raw, len(rows))
	}

	writeVersioned(c, version, dto.CalculateCentralityResponse{
		GroupID:       groupID,
		SchemaVersion: version.String(),
		Scores:        scores,
	})
}

func renderMetrics(version centrality.SchemaVersion, metrics *centrality.Metrics) map[string]map[string]interface{} {
	nodeCount := len(metrics.PageRank)
	out := make(map[string]map[string]interface{}, nodeCount)
	for id := range metrics.PageRank {
		raw := map[string]float64{
			"pagerank":    metrics.PageRank[id],
			"degree":      metrics.Degree[id],
			"betweenness": metrics.Betweenness[id],
			"importance":  metrics.Importance[id],
		}
		out[id] = centrality.FormatScores(version, raw, nodeCount)
	}
	return out
}

func writeVersioned(c *gin.Context, version centrality.SchemaVersion, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "encoding_failed", Message: err.Error()})
		return
	}
	c.Data(http.StatusOK, centrality.ContentType(version), data)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
