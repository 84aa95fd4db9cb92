package dto

// SearchQuery is a direct search request.
type SearchQuery struct {
	Query              string   `json:"query" binding:"required"`
	GroupIDs           []string `json:"group_ids,omitempty"`
	MaxFacts           int      `json:"max_facts,omitempty"`
	CenterNodeUUID     string   `json:"center_node_uuid,omitempty"`
	IncludeInvalidated bool     `json:"include_invalidated,omitempty"`
	Reranker           string   `json:"reranker,omitempty"`
}

// SearchResults holds ranked facts and entities for a query.
type SearchResults struct {
	Facts    []FactResult `json:"facts"`
	Entities []NodeResult `json:"entities,omitempty"`
	Total    int          `json:"total"`
}

// GetMemoryRequest retrieves memory relevant to a conversation.
type GetMemoryRequest struct {
	GroupID  string    `json:"group_id" binding:"required"`
	Messages []Message `json:"messages" binding:"required,min=1"`
	MaxFacts int       `json:"max_facts,omitempty"`
}

// GetMemoryResponse holds facts relevant to the conversation.
type GetMemoryResponse struct {
	Facts []FactResult `json:"facts"`
	Total int          `json:"total"`
}

// GetEpisodesResponse lists recent episodes of a group.
type GetEpisodesResponse struct {
	Episodes []EpisodeResult `json:"episodes"`
	Total    int             `json:"total"`
}
