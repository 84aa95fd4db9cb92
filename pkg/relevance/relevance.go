// Package relevance tracks how useful retrieved memories turn out to be
// and feeds that signal back into ranking.
package relevance

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/search"
	"github.com/soundprediction/graphmem/pkg/utils"
)

const (
	// DefaultAlpha is the EMA weight of the newest observation.
	DefaultAlpha = 0.3
	// DefaultHalfLifeDays halves an unrefreshed score in this many days.
	DefaultHalfLifeDays = 30.0
	// NeutralScore is assumed when scoring fails.
	NeutralScore = 0.5
	// HighRelevance marks an observation as a successful use.
	HighRelevance = 0.7
	// maxObservations bounds the per-record history.
	maxObservations = 50
)

// ScoreMethod says how an observation was produced.
type ScoreMethod string

const (
	// MethodManual for scores supplied directly by the caller.
	MethodManual ScoreMethod = "manual"
	// MethodLLM for model-rated scores.
	MethodLLM ScoreMethod = "llm"
	// MethodHeuristic for lexical-overlap scores.
	MethodHeuristic ScoreMethod = "heuristic"
)

// Observation is one relevance measurement for a memory.
type Observation struct {
	Score     float64     `json:"score"`
	QueryID   string      `json:"query_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Method    ScoreMethod `json:"method"`
}

// Record accumulates relevance observations for one memory. Score is
// the exponential moving average over the observation history;
// UsageCount counts every observation and SuccessfulUses the ones at or
// above HighRelevance.
type Record struct {
	ID             string        `json:"id"`
	Score          float64       `json:"score"`
	Observations   []Observation `json:"observations,omitempty"`
	UsageCount     int           `json:"usage_count"`
	SuccessfulUses int           `json:"successful_uses"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Update folds a new observation into the record with an exponential
// moving average and appends it to the history, keeping the most recent
// maxObservations entries.
func (r *Record) Update(obs Observation, alpha float64) {
	if r.UsageCount == 0 {
		r.Score = obs.Score
	} else {
		r.Score = alpha*obs.Score + (1-alpha)*r.Score
	}
	r.Observations = append(r.Observations, obs)
	if len(r.Observations) > maxObservations {
		r.Observations = r.Observations[len(r.Observations)-maxObservations:]
	}
	r.UsageCount++
	if obs.Score >= HighRelevance {
		r.SuccessfulUses++
	}
	r.UpdatedAt = obs.Timestamp
}

// EffectiveScore decays the stored score by its age: unrefreshed
// relevance halves every halfLifeDays.
func (r *Record) EffectiveScore(now time.Time, halfLifeDays float64) float64 {
	if r.UsageCount == 0 {
		return 0
	}
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	days := now.Sub(r.UpdatedAt).Hours() / 24
	if days <= 0 {
		return r.Score
	}
	return r.Score * math.Exp(-math.Ln2*days/halfLifeDays)
}

// Scorer rates how relevant a memory was to a query, in [0,1].
type Scorer interface {
	Score(ctx context.Context, query, memory, response string) (float64, error)
	// Method labels the observations this scorer produces.
	Method() ScoreMethod
}

// HeuristicScorer scores by token overlap, no LLM involved. Jaccard
// similarity maps to [0.3,0.7] so lexical overlap alone never saturates
// the scale; a response that visibly uses the memory earns a boost.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(ctx context.Context, query, memory, response string) (float64, error) {
	score := 0.3 + 0.4*jaccard(tokenize(query), tokenize(memory))

	if usedInResponse(memory, response) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func (HeuristicScorer) Method() ScoreMethod { return MethodHeuristic }

// usedInResponse reports whether the response quotes the start of the
// memory.
func usedInResponse(memory, response string) bool {
	memory = strings.ToLower(strings.TrimSpace(memory))
	response = strings.ToLower(response)
	if memory == "" || response == "" {
		return false
	}
	prefix := memory
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	return strings.Contains(response, prefix)
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// LLMScorer asks a model to rate relevance. Failures yield the neutral
// score rather than an error, so feedback never blocks on the provider.
type LLMScorer struct {
	client llm.Client
}

// NewLLMScorer creates an LLM-backed scorer.
func NewLLMScorer(client llm.Client) *LLMScorer {
	return &LLMScorer{client: client}
}

type llmScore struct {
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

func llmScoreSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"relevance_score": map[string]interface{}{"type": "number"},
			"reasoning":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"relevance_score", "reasoning"},
	}
}

func (s *LLMScorer) Score(ctx context.Context, query, memory, response string) (float64, error) {
	messages := []llm.Message{
		llm.NewSystemMessage("You rate how relevant a retrieved memory was to answering a query, from 0.0 (useless) to 1.0 (essential)."),
		llm.NewUserMessage("<QUERY>\n" + query + "\n</QUERY>\n\n<MEMORY>\n" + memory + "\n</MEMORY>\n\n<RESPONSE>\n" + response + "\n</RESPONSE>\n\nRate the memory's relevance."),
	}
	raw, err := s.client.ChatWithStructuredOutput(ctx, messages, llmScoreSchema(), llm.ModelSizeSmall)
	if err != nil {
		return NeutralScore, nil
	}
	var parsed llmScore
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return NeutralScore, nil
	}
	return clip01(parsed.RelevanceScore), nil
}

func (s *LLMScorer) Method() ScoreMethod { return MethodLLM }

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HybridScorer averages the heuristic and LLM scores.
type HybridScorer struct {
	heuristic HeuristicScorer
	llm       *LLMScorer
}

// NewHybridScorer creates a hybrid scorer.
func NewHybridScorer(client llm.Client) *HybridScorer {
	return &HybridScorer{llm: NewLLMScorer(client)}
}

func (s *HybridScorer) Score(ctx context.Context, query, memory, response string) (float64, error) {
	h, _ := s.heuristic.Score(ctx, query, memory, response)
	l, _ := s.llm.Score(ctx, query, memory, response)
	return (h + l) / 2, nil
}

// Method reports llm: the model contribution dominates when present.
func (s *HybridScorer) Method() ScoreMethod { return MethodLLM }

// Tracker holds relevance records and applies feedback.
type Tracker struct {
	mu           sync.RWMutex
	records      map[string]*Record
	alpha        float64
	halfLifeDays float64
}

// NewTracker creates a tracker with the default EMA and decay settings.
func NewTracker() *Tracker {
	return &Tracker{
		records:      make(map[string]*Record),
		alpha:        DefaultAlpha,
		halfLifeDays: DefaultHalfLifeDays,
	}
}

// Feedback records one caller-supplied relevance score for a memory.
func (t *Tracker) Feedback(memoryID string, score float64) {
	t.Observe(memoryID, Observation{Score: score, Method: MethodManual})
}

// Observe records one relevance observation for a memory. The score is
// clipped to [0,1]; a zero timestamp is stamped with the current time.
func (t *Tracker) Observe(memoryID string, obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obs.Score = clip01(obs.Score)
	if obs.Timestamp.IsZero() {
		obs.Timestamp = utils.UTCNow()
	}
	if obs.Method == "" {
		obs.Method = MethodManual
	}

	record, ok := t.records[memoryID]
	if !ok {
		record = &Record{ID: memoryID}
		t.records[memoryID] = record
	}
	record.Update(obs, t.alpha)
}

// Get returns the record for a memory, or nil.
func (t *Tracker) Get(memoryID string) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.records[memoryID]; ok {
		copied := *r
		copied.Observations = append([]Observation(nil), r.Observations...)
		return &copied
	}
	return nil
}

// EffectiveScore returns the decayed score for a memory, zero if
// unknown.
func (t *Tracker) EffectiveScore(memoryID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.records[memoryID]; ok {
		return r.EffectiveScore(utils.UTCNow(), t.halfLifeDays)
	}
	return 0
}

// FuseWithFeedback merges a retrieval ranking with the tracker's
// relevance ranking via reciprocal rank fusion.
func (t *Tracker) FuseWithFeedback(retrieved []string) []string {
	t.mu.RLock()
	byScore := make([]string, 0, len(retrieved))
	now := utils.UTCNow()
	scores := make(map[string]float64, len(retrieved))
	for _, id := range retrieved {
		if r, ok := t.records[id]; ok {
			scores[id] = r.EffectiveScore(now, t.halfLifeDays)
		}
	}
	t.mu.RUnlock()

	for _, id := range retrieved {
		if scores[id] > 0 {
			byScore = append(byScore, id)
		}
	}
	sortByScoreDesc(byScore, scores)

	if len(byScore) == 0 {
		return retrieved
	}
	fused, _ := search.RRF([][]string{retrieved, byScore}, search.DefaultRRFK)
	return fused
}

func sortByScoreDesc(ids []string, scores map[string]float64) {
	sort.SliceStable(ids, func(i, j int) bool {
		return scores[ids[i]] > scores[ids[j]]
	})
}
