package utils

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit              = 20
	DefaultSemaphoreLimit         = 10
	DefaultMaxReflexionIterations = 0
	DefaultEpisodeContextWindow   = 4
	DefaultResolveConcurrency     = 4
)

var (
	// ErrInvalidGroupID is returned when a group ID contains invalid characters
	ErrInvalidGroupID = errors.New("group ID contains invalid characters")
	// ErrInvalidEntityType is returned when an entity type is invalid
	ErrInvalidEntityType = errors.New("invalid entity type")

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// GenerateUUID returns a new random UUID string, used as the identity of
// every node and edge written to the graph.
func GenerateUUID() string {
	return uuid.NewString()
}

// DeterministicUUID derives a stable UUID from its parts, so writes
// keyed by it land on the same record every time.
func DeterministicUUID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "\x00"))).String()
}

// NormalizeName canonicalizes an entity name for exact-match comparison:
// trims surrounding whitespace and quotes and collapses internal runs of
// whitespace. Idempotent: NormalizeName(NormalizeName(s)) == NormalizeName(s).
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.TrimSpace(name)
	return whitespaceRe.ReplaceAllString(name, " ")
}

// GetSemaphoreLimit returns the worker concurrency width from
// SEMAPHORE_LIMIT or the default
func GetSemaphoreLimit() int {
	return envInt("SEMAPHORE_LIMIT", DefaultSemaphoreLimit)
}

// GetMaxReflexionIterations returns the extraction reflexion budget from
// MAX_REFLEXION_ITERATIONS or the default
func GetMaxReflexionIterations() int {
	return envInt("MAX_REFLEXION_ITERATIONS", DefaultMaxReflexionIterations)
}

// GetUseParallelRuntime returns whether to use the parallel runtime based
// on USE_PARALLEL_RUNTIME
func GetUseParallelRuntime() bool {
	val := os.Getenv("USE_PARALLEL_RUNTIME")
	if val == "" {
		return false
	}
	b, _ := strconv.ParseBool(val)
	return b
}

func envInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// LuceneSanitize escapes special characters from a query before passing it
// into a fulltext index
func LuceneSanitize(query string) string {
	replacer := strings.NewReplacer(
		"+", `\+`,
		"-", `\-`,
		"&", `\&`,
		"|", `\|`,
		"!", `\!`,
		"(", `\(`,
		")", `\)`,
		"{", `\{`,
		"}", `\}`,
		"[", `\[`,
		"]", `\]`,
		"^", `\^`,
		"\"", `\"`,
		"~", `\~`,
		"*", `\*`,
		"?", `\?`,
		":", `\:`,
		"\\", `\\`,
		"/", `\/`,
	)
	return replacer.Replace(query)
}

// NormalizeL2 normalizes a vector in place semantics-free: returns a new
// L2-normalized copy. Zero vectors are returned unchanged.
func NormalizeL2(embedding []float32) []float32 {
	if len(embedding) == 0 {
		return embedding
	}

	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = float32(float64(val) / norm)
	}
	return normalized
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty, zero, or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ValidateGroupID validates that a group_id contains only ASCII
// alphanumeric characters, dashes, and underscores
func ValidateGroupID(groupID string) error {
	if groupID == "" {
		return nil
	}

	matched, err := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, groupID)
	if err != nil {
		return fmt.Errorf("failed to validate group ID: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: group ID %q", ErrInvalidGroupID, groupID)
	}
	return nil
}

// ValidateExcludedEntityTypes checks excluded entity type names against the
// registered ontology
func ValidateExcludedEntityTypes(excluded []string, available []string) error {
	if len(excluded) == 0 {
		return nil
	}

	availableSet := map[string]bool{"Entity": true}
	for _, t := range available {
		availableSet[t] = true
	}

	var invalid []string
	for _, t := range excluded {
		if !availableSet[t] {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: excluded entity types %v not registered", ErrInvalidEntityType, invalid)
	}
	return nil
}
