package centrality

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SchemaVersion is a semantic version of the centrality score schema.
type SchemaVersion struct {
	Major int
	Minor int
	Patch int
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible reports whether data written under w can be read as v.
// Compatibility follows semver: same major version.
func (v SchemaVersion) Compatible(w SchemaVersion) bool {
	return v.Major == w.Major
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (SchemaVersion, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return SchemaVersion{}, fmt.Errorf("invalid schema version %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return SchemaVersion{Major: major, Minor: minor, Patch: patch}, nil
}

// Schema history, additive within a major:
//   1.0.0  pagerank, degree (raw counts), betweenness
//   1.1.0  adds the importance composite
//   1.2.0  adds eigenvector
//   2.0.0  breaking: every metric normalized to [0, 1]
//   2.1.0  adds closeness
//   2.2.0  adds harmonic
var (
	SchemaV1     = SchemaVersion{Major: 1, Minor: 2}
	SchemaV2     = SchemaVersion{Major: 2}
	SchemaLatest = SchemaVersion{Major: 2, Minor: 2}
)

// KnownVersions lists every schema version ever written, oldest first.
var KnownVersions = []SchemaVersion{
	{Major: 1},
	{Major: 1, Minor: 1},
	{Major: 1, Minor: 2},
	{Major: 2},
	{Major: 2, Minor: 1},
	{Major: 2, Minor: 2},
}

// schemaAdditions records the metrics each version introduced. 2.0.0
// changed the representation, not the metric set.
var schemaAdditions = map[SchemaVersion][]string{
	{Major: 1}:           {"pagerank", "degree", "betweenness"},
	{Major: 1, Minor: 1}: {"importance"},
	{Major: 1, Minor: 2}: {"eigenvector"},
	{Major: 2, Minor: 1}: {"closeness"},
	{Major: 2, Minor: 2}: {"harmonic"},
}

// Before reports whether v precedes w in schema order.
func (v SchemaVersion) Before(w SchemaVersion) bool {
	if v.Major != w.Major {
		return v.Major < w.Major
	}
	if v.Minor != w.Minor {
		return v.Minor < w.Minor
	}
	return v.Patch < w.Patch
}

// MetricsFor returns the metric names defined at version v.
func MetricsFor(v SchemaVersion) map[string]bool {
	defined := make(map[string]bool)
	for _, known := range KnownVersions {
		if v.Before(known) {
			break
		}
		for _, m := range schemaAdditions[known] {
			defined[m] = true
		}
	}
	return defined
}

// MigrateV1ToV2 converts v1 scores for one node to the v2 schema:
// degree becomes normalized by N-1 and the composite (recomputable) is
// dropped.
func MigrateV1ToV2(scores map[string]float64, nodeCount int) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for metric, value := range scores {
		switch metric {
		case "degree":
			if nodeCount > 1 {
				out[metric] = value / float64(nodeCount-1)
			} else {
				out[metric] = 0
			}
		case "importance":
			// dropped
		default:
			out[metric] = value
		}
	}
	return out
}

var acceptPattern = regexp.MustCompile(`application/vnd\.centrality\.v(\d+)\+json`)

// NegotiateVersion resolves an Accept header of the form
// application/vnd.centrality.v{major}+json to a known schema version.
// An empty or generic header yields the latest version; an unknown major
// is an error.
func NegotiateVersion(accept string) (SchemaVersion, error) {
	accept = strings.TrimSpace(accept)
	if accept == "" || accept == "*/*" || accept == "application/json" {
		return SchemaLatest, nil
	}
	m := acceptPattern.FindStringSubmatch(accept)
	if m == nil {
		return SchemaVersion{}, fmt.Errorf("unsupported media type %q", accept)
	}
	major, _ := strconv.Atoi(m[1])
	var best SchemaVersion
	found := false
	for _, v := range KnownVersions {
		if v.Major == major {
			best = v
			found = true
		}
	}
	if !found {
		return SchemaVersion{}, fmt.Errorf("unsupported centrality schema major v%d", major)
	}
	return best, nil
}

// ContentType returns the media type for a negotiated version.
func ContentType(v SchemaVersion) string {
	return fmt.Sprintf("application/vnd.centrality.v%d+json", v.Major)
}

// FormatScores renders one node's stored scores (raw degree counts, the
// v1 on-disk form) under the requested schema version: v2 requests get
// migrated values, and metrics outside the version's defined set are
// dropped.
func FormatScores(v SchemaVersion, scores map[string]float64, nodeCount int) map[string]interface{} {
	rendered := make(map[string]float64, len(scores))
	for k, val := range scores {
		rendered[k] = val
	}
	if v.Major >= 2 {
		// The migrator drops the composite as recomputable, but the
		// metric stays defined in every 2.x version; serve the stored
		// value.
		importance, hadImportance := rendered["importance"]
		rendered = MigrateV1ToV2(rendered, nodeCount)
		if hadImportance {
			rendered["importance"] = importance
		}
	}

	defined := MetricsFor(v)
	out := make(map[string]interface{}, len(rendered)+1)
	for k, val := range rendered {
		if defined[k] {
			out[k] = val
		}
	}
	out["schema_version"] = v.String()
	return out
}
