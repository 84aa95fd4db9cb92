package prompts

// Response models for structured prompt output, with their JSON schemas.
// Schemas are plain maps so clients can strictify or embed them as each
// provider requires.

// ExtractedEntity is one entity returned by node extraction.
type ExtractedEntity struct {
	Name         string `json:"name"`
	EntityTypeID int    `json:"entity_type_id"`
	Summary      string `json:"summary,omitempty"`
}

// ExtractedEntities is the node extraction response.
type ExtractedEntities struct {
	Entities []ExtractedEntity `json:"entities"`
}

// MissedEntities is the reflexion response listing entities the previous
// extraction pass missed.
type MissedEntities struct {
	MissedEntities []string `json:"missed_entities"`
}

// NodeDuplicate resolves one extracted entity against candidates:
// DuplicateIdx is the candidate index it duplicates, or -1 for none.
type NodeDuplicate struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DuplicateIdx int    `json:"duplicate_idx"`
}

// NodeResolutions is the node dedupe response.
type NodeResolutions struct {
	EntityResolutions []NodeDuplicate `json:"entity_resolutions"`
}

// ExtractedEdge is one fact returned by edge extraction. Source and
// target reference entity indexes in the prompt's entity list.
type ExtractedEdge struct {
	RelationType  string `json:"relation_type"`
	SourceEntity  int    `json:"source_entity_id"`
	TargetEntity  int    `json:"target_entity_id"`
	Fact          string `json:"fact"`
	ValidAt       string `json:"valid_at,omitempty"`
	InvalidAt     string `json:"invalid_at,omitempty"`
}

// ExtractedEdges is the edge extraction response.
type ExtractedEdges struct {
	Edges []ExtractedEdge `json:"edges"`
}

// EdgeDuplicate is the edge dedupe response for one new edge against its
// candidates: indexes of candidates stating the same fact, and indexes of
// candidates the new fact contradicts.
type EdgeDuplicate struct {
	DuplicateFacts    []int  `json:"duplicate_facts"`
	ContradictedFacts []int  `json:"contradicted_facts"`
	FactType          string `json:"fact_type"`
}

// InvalidatedEdges lists existing edge indexes a new fact invalidates.
type InvalidatedEdges struct {
	InvalidatedEdges []int `json:"invalidated_edges"`
}

// EdgeDates is the temporal extraction response; values are RFC3339 or
// empty when the episode states nothing.
type EdgeDates struct {
	ValidAt   string `json:"valid_at"`
	InvalidAt string `json:"invalid_at"`
}

// EntitySummary is the node summarization response.
type EntitySummary struct {
	Summary string `json:"summary"`
}

// CommunitySummary is the community summarization response.
type CommunitySummary struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func arraySchema(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func stringSchema() map[string]interface{}  { return map[string]interface{}{"type": "string"} }
func integerSchema() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

// ExtractedEntitiesSchema is the JSON schema for ExtractedEntities.
func ExtractedEntitiesSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"entities": arraySchema(objectSchema(map[string]interface{}{
			"name":           stringSchema(),
			"entity_type_id": integerSchema(),
			"summary":        stringSchema(),
		}, "name", "entity_type_id")),
	}, "entities")
}

// MissedEntitiesSchema is the JSON schema for MissedEntities.
func MissedEntitiesSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"missed_entities": arraySchema(stringSchema()),
	}, "missed_entities")
}

// NodeResolutionsSchema is the JSON schema for NodeResolutions.
func NodeResolutionsSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"entity_resolutions": arraySchema(objectSchema(map[string]interface{}{
			"id":            integerSchema(),
			"name":          stringSchema(),
			"duplicate_idx": integerSchema(),
		}, "id", "name", "duplicate_idx")),
	}, "entity_resolutions")
}

// ExtractedEdgesSchema is the JSON schema for ExtractedEdges.
func ExtractedEdgesSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"edges": arraySchema(objectSchema(map[string]interface{}{
			"relation_type":    stringSchema(),
			"source_entity_id": integerSchema(),
			"target_entity_id": integerSchema(),
			"fact":             stringSchema(),
			"valid_at":         stringSchema(),
			"invalid_at":       stringSchema(),
		}, "relation_type", "source_entity_id", "target_entity_id", "fact")),
	}, "edges")
}

// EdgeDuplicateSchema is the JSON schema for EdgeDuplicate.
func EdgeDuplicateSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"duplicate_facts":    arraySchema(integerSchema()),
		"contradicted_facts": arraySchema(integerSchema()),
		"fact_type":          stringSchema(),
	}, "duplicate_facts", "contradicted_facts", "fact_type")
}

// InvalidatedEdgesSchema is the JSON schema for InvalidatedEdges.
func InvalidatedEdgesSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"invalidated_edges": arraySchema(integerSchema()),
	}, "invalidated_edges")
}

// EdgeDatesSchema is the JSON schema for EdgeDates.
func EdgeDatesSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"valid_at":   stringSchema(),
		"invalid_at": stringSchema(),
	}, "valid_at", "invalid_at")
}

// EntitySummarySchema is the JSON schema for EntitySummary.
func EntitySummarySchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"summary": stringSchema(),
	}, "summary")
}

// CommunitySummarySchema is the JSON schema for CommunitySummary.
func CommunitySummarySchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"name":    stringSchema(),
		"summary": stringSchema(),
	}, "name", "summary")
}
