package crossencoder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// LLMReranker implements Client by asking an LLM to score each passage's
// relevance to the query in one structured call per batch.
type LLMReranker struct {
	client llm.Client
	config Config
}

// NewLLMReranker creates a reranker over an LLM client.
func NewLLMReranker(client llm.Client, config Config) *LLMReranker {
	if config.BatchSize == 0 {
		config.BatchSize = 25
	}
	return &LLMReranker{client: client, config: config}
}

type passageScores struct {
	Scores []struct {
		ID    int     `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

func passageScoresSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"scores": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":    map[string]interface{}{"type": "integer"},
						"score": map[string]interface{}{"type": "number"},
					},
					"required": []string{"id", "score"},
				},
			},
		},
		"required": []string{"scores"},
	}
}

// Rank scores all passages against the query and returns them sorted by
// descending score. Passages the model fails to score get 0.
func (r *LLMReranker) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(passages))
	for start := 0; start < len(passages); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(passages) {
			end = len(passages)
		}
		if err := r.scoreBatch(ctx, query, passages, start, end, scores); err != nil {
			return nil, err
		}
	}

	ranked := make([]RankedPassage, len(passages))
	for i, p := range passages {
		ranked[i] = RankedPassage{Passage: p, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func (r *LLMReranker) scoreBatch(ctx context.Context, query string, passages []string, start, end int, scores []float64) error {
	numbered := ""
	for i := start; i < end; i++ {
		numbered += fmt.Sprintf("[%d] %s\n", i, passages[i])
	}

	messages := []llm.Message{
		llm.NewSystemMessage("You score how relevant each passage is to a query, from 0.0 (irrelevant) to 1.0 (directly answers it)."),
		llm.NewUserMessage(fmt.Sprintf("<QUERY>\n%s\n</QUERY>\n\n<PASSAGES>\n%s</PASSAGES>\n\nScore every passage by id.", query, numbered)),
	}

	raw, err := r.client.ChatWithStructuredOutput(ctx, messages, passageScoresSchema(), llm.ModelSizeSmall)
	if err != nil {
		return fmt.Errorf("cross-encoder scoring failed: %w", err)
	}

	var parsed passageScores
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to parse cross-encoder scores: %w", err)
	}
	for _, s := range parsed.Scores {
		if s.ID >= start && s.ID < end {
			scores[s.ID] = clamp01(s.Score)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Close cleans up resources. The LLM client is owned by the caller.
func (r *LLMReranker) Close() error {
	return nil
}
