package dto

// CalculateCentralityRequest triggers a centrality calculation.
type CalculateCentralityRequest struct {
	GroupID      string `json:"group_id" binding:"required"`
	StoreResults bool   `json:"store_results,omitempty"`
}

// CalculateCentralityResponse returns per-node scores rendered under the
// negotiated schema version.
type CalculateCentralityResponse struct {
	GroupID       string                            `json:"group_id"`
	SchemaVersion string                            `json:"schema_version"`
	TransactionID string                            `json:"transaction_id,omitempty"`
	Scores        map[string]map[string]interface{} `json:"scores"`
}

// RelevanceFeedbackRequest records how useful a memory turned out to be.
// Score is used directly when set; otherwise the query, memory and
// response fields are scored server-side.
type RelevanceFeedbackRequest struct {
	MemoryID string   `json:"memory_id" binding:"required"`
	Score    *float64 `json:"score,omitempty"`
	QueryID  string   `json:"query_id,omitempty"`
	Query    string   `json:"query,omitempty"`
	Memory   string   `json:"memory,omitempty"`
	Response string   `json:"response,omitempty"`
}

// RelevanceFeedbackResponse echoes the recorded score and counters.
type RelevanceFeedbackResponse struct {
	MemoryID       string  `json:"memory_id"`
	Score          float64 `json:"score"`
	UsageCount     int     `json:"usage_count"`
	SuccessfulUses int     `json:"successful_uses"`
}
