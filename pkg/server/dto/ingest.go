package dto

import "time"

// AddMessagesRequest submits chat messages for ingestion.
type AddMessagesRequest struct {
	GroupID   string     `json:"group_id" binding:"required"`
	Messages  []Message  `json:"messages" binding:"required,min=1"`
	Reference *time.Time `json:"reference,omitempty"`
}

// AddEntityNodeRequest creates an entity node directly, bypassing
// extraction.
type AddEntityNodeRequest struct {
	GroupID    string                 `json:"group_id" binding:"required"`
	Name       string                 `json:"name" binding:"required"`
	EntityType string                 `json:"entity_type,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ClearDataRequest wipes whole groups from the graph.
type ClearDataRequest struct {
	GroupIDs []string `json:"group_ids" binding:"required,min=1"`
}

// IngestResponse reports the outcome of an ingest operation.
type IngestResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Queued   int      `json:"queued,omitempty"`
	TaskIDs  []string `json:"task_ids,omitempty"`
	NodeUUID string   `json:"node_uuid,omitempty"`
}
