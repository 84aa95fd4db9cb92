package driver

import (
	"encoding/json"
	"strings"

	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// relationshipType maps an edge to its stored relationship type. EdgeType
// constants are already the SCREAMING_SNAKE_CASE relationship names.
func relationshipType(edge *types.Edge) string {
	if edge.Type == "" {
		return string(types.EntityEdgeType)
	}
	return string(edge.Type)
}

// toFloat64s widens a float32 embedding for drivers that only accept
// float64 list parameters.
func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32s(v []interface{}) []float32 {
	out := make([]float32, 0, len(v))
	for _, x := range v {
		if f, ok := x.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func toStrings(v []interface{}) []string {
	out := make([]string, 0, len(v))
	for _, x := range v {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// nodeToProps flattens a node into graph properties. Embeddings are stored
// as native float lists so the vector indexes can use them; structured
// fields (attributes, metadata, centrality) are stored as JSON strings.
func nodeToProps(node *types.Node) map[string]any {
	props := map[string]any{
		"uuid":       node.ID,
		"name":       node.Name,
		"type":       string(node.Type),
		"group_id":   node.GroupID,
		"created_at": utils.FormatTimeForDB(node.CreatedAt),
		"updated_at": utils.FormatTimeForDB(node.UpdatedAt),
	}

	if node.EntityType != "" {
		props["entity_type"] = node.EntityType
	}
	if node.Summary != "" {
		props["summary"] = node.Summary
	}
	if len(node.NameEmbedding) > 0 {
		props["name_embedding"] = toFloat64s(node.NameEmbedding)
	}

	if node.Source != "" {
		props["source"] = string(node.Source)
	}
	if node.SourceDescription != "" {
		props["source_description"] = node.SourceDescription
	}
	if node.Content != "" {
		props["content"] = node.Content
	}
	if len(node.ContentEmbedding) > 0 {
		props["content_embedding"] = toFloat64s(node.ContentEmbedding)
	}
	if !node.ValidAt.IsZero() {
		props["valid_at"] = utils.FormatTimeForDB(node.ValidAt)
	}
	if len(node.EntityEdges) > 0 {
		props["entity_edges"] = node.EntityEdges
	}

	if node.Type == types.CommunityNodeType {
		props["level"] = node.Level
		if len(node.Members) > 0 {
			props["members"] = node.Members
		}
	}

	for metric, score := range node.Centrality {
		props["centrality_"+metric] = score
	}

	if len(node.Attributes) > 0 {
		if b, err := json.Marshal(node.Attributes); err == nil {
			props["attributes"] = string(b)
		}
	}
	if len(node.Metadata) > 0 {
		if b, err := json.Marshal(node.Metadata); err == nil {
			props["metadata"] = string(b)
		}
	}
	return props
}

// nodeFromProps rebuilds a node from graph properties.
func nodeFromProps(props map[string]any) *types.Node {
	node := &types.Node{}

	if v, ok := props["uuid"].(string); ok {
		node.ID = v
	}
	if v, ok := props["name"].(string); ok {
		node.Name = v
	}
	if v, ok := props["type"].(string); ok {
		node.Type = types.NodeType(v)
	}
	if v, ok := props["group_id"].(string); ok {
		node.GroupID = v
	}
	if t, err := utils.ParseDBDate(props["created_at"]); err == nil && t != nil {
		node.CreatedAt = *t
	}
	if t, err := utils.ParseDBDate(props["updated_at"]); err == nil && t != nil {
		node.UpdatedAt = *t
	}

	if v, ok := props["entity_type"].(string); ok {
		node.EntityType = v
	}
	if v, ok := props["summary"].(string); ok {
		node.Summary = v
	}
	if v, ok := props["name_embedding"].([]interface{}); ok {
		node.NameEmbedding = toFloat32s(v)
	}

	if v, ok := props["source"].(string); ok {
		node.Source = types.EpisodeSource(v)
	}
	if v, ok := props["source_description"].(string); ok {
		node.SourceDescription = v
	}
	if v, ok := props["content"].(string); ok {
		node.Content = v
	}
	if v, ok := props["content_embedding"].([]interface{}); ok {
		node.ContentEmbedding = toFloat32s(v)
	}
	if t, err := utils.ParseDBDate(props["valid_at"]); err == nil && t != nil {
		node.ValidAt = *t
	}
	if v, ok := props["entity_edges"].([]interface{}); ok {
		node.EntityEdges = toStrings(v)
	}

	if v, ok := props["level"].(int64); ok {
		node.Level = int(v)
	}
	if v, ok := props["members"].([]interface{}); ok {
		node.Members = toStrings(v)
	}

	for key, value := range props {
		metric, found := strings.CutPrefix(key, "centrality_")
		if !found || metric == "" {
			continue
		}
		if score, ok := value.(float64); ok {
			if node.Centrality == nil {
				node.Centrality = make(map[string]float64)
			}
			node.Centrality[metric] = score
		}
	}

	if v, ok := props["attributes"].(string); ok {
		var attrs map[string]interface{}
		if err := json.Unmarshal([]byte(v), &attrs); err == nil {
			node.Attributes = attrs
		}
	}
	if v, ok := props["metadata"].(string); ok {
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(v), &meta); err == nil {
			node.Metadata = meta
		}
	}
	return node
}

// edgeToProps flattens an edge into relationship properties.
func edgeToProps(edge *types.Edge) map[string]any {
	props := map[string]any{
		"uuid":       edge.ID,
		"group_id":   edge.GroupID,
		"source_id":  edge.SourceID,
		"target_id":  edge.TargetID,
		"created_at": utils.FormatTimeForDB(edge.CreatedAt),
		"updated_at": utils.FormatTimeForDB(edge.UpdatedAt),
	}

	if edge.Name != "" {
		props["name"] = edge.Name
	}
	if edge.Fact != "" {
		props["fact"] = edge.Fact
	}
	if len(edge.FactEmbedding) > 0 {
		props["fact_embedding"] = toFloat64s(edge.FactEmbedding)
	}
	if len(edge.Episodes) > 0 {
		props["episodes"] = edge.Episodes
	}

	if !edge.ValidAt.IsZero() {
		props["valid_at"] = utils.FormatTimeForDB(edge.ValidAt)
	}
	if edge.InvalidAt != nil {
		props["invalid_at"] = utils.FormatTimeForDB(*edge.InvalidAt)
	}
	if edge.ExpiredAt != nil {
		props["expired_at"] = utils.FormatTimeForDB(*edge.ExpiredAt)
	}

	if len(edge.Metadata) > 0 {
		if b, err := json.Marshal(edge.Metadata); err == nil {
			props["metadata"] = string(b)
		}
	}
	return props
}

// edgeFromProps rebuilds an edge from relationship properties. The stored
// relationship type wins over any type property.
func edgeFromProps(relType string, props map[string]any, sourceID, targetID string) *types.Edge {
	edge := &types.Edge{
		Type:     types.EdgeType(relType),
		SourceID: sourceID,
		TargetID: targetID,
	}

	if v, ok := props["uuid"].(string); ok {
		edge.ID = v
	}
	if v, ok := props["group_id"].(string); ok {
		edge.GroupID = v
	}
	if edge.SourceID == "" {
		if v, ok := props["source_id"].(string); ok {
			edge.SourceID = v
		}
	}
	if edge.TargetID == "" {
		if v, ok := props["target_id"].(string); ok {
			edge.TargetID = v
		}
	}
	if t, err := utils.ParseDBDate(props["created_at"]); err == nil && t != nil {
		edge.CreatedAt = *t
	}
	if t, err := utils.ParseDBDate(props["updated_at"]); err == nil && t != nil {
		edge.UpdatedAt = *t
	}

	if v, ok := props["name"].(string); ok {
		edge.Name = v
	}
	if v, ok := props["fact"].(string); ok {
		edge.Fact = v
	}
	if v, ok := props["fact_embedding"].([]interface{}); ok {
		edge.FactEmbedding = toFloat32s(v)
	}
	if v, ok := props["episodes"].([]interface{}); ok {
		edge.Episodes = toStrings(v)
	}

	if t, err := utils.ParseDBDate(props["valid_at"]); err == nil && t != nil {
		edge.ValidAt = *t
	}
	if t, err := utils.ParseDBDate(props["invalid_at"]); err == nil && t != nil {
		edge.InvalidAt = t
	}
	if t, err := utils.ParseDBDate(props["expired_at"]); err == nil && t != nil {
		edge.ExpiredAt = t
	}

	if v, ok := props["metadata"].(string); ok {
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(v), &meta); err == nil {
			edge.Metadata = meta
		}
	}

	return edge
}
