// Package dto defines the HTTP request and response shapes.
package dto

import "time"

// Message is one chat turn submitted for ingestion.
type Message struct {
	Role      string     `json:"role" binding:"required"`
	Content   string     `json:"content" binding:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// FactResult is one edge returned from search, flattened for clients.
type FactResult struct {
	UUID         string     `json:"uuid"`
	Fact         string     `json:"fact"`
	SourceName   string     `json:"source_name,omitempty"`
	TargetName   string     `json:"target_name,omitempty"`
	RelationType string     `json:"relation_type"`
	ValidAt      *time.Time `json:"valid_at,omitempty"`
	InvalidAt    *time.Time `json:"invalid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Score        *float64   `json:"score,omitempty"`
}

// NodeResult is one entity node returned from search.
type NodeResult struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// EpisodeResult is one episode returned to clients.
type EpisodeResult struct {
	UUID      string    `json:"uuid"`
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	ValidAt   time.Time `json:"valid_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
