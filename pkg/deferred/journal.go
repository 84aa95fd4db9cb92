// Package deferred journals episodes into DuckDB so ingestion can run
// later in batches, with the extraction output kept for audit.
package deferred

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// Journal stores raw episodes and their extraction results in DuckDB.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) a journal database at path. An empty
// path uses an in-memory database.
func NewJournal(path string) (*Journal, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j := &Journal{db: db}
	if err := j.createTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id VARCHAR PRIMARY KEY,
			name VARCHAR,
			content VARCHAR,
			source VARCHAR,
			source_description VARCHAR,
			reference TIMESTAMP,
			group_id VARCHAR,
			created_at TIMESTAMP,
			metadata JSON,
			processed BOOLEAN DEFAULT FALSE,
			processed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS extracted_nodes (
			id VARCHAR PRIMARY KEY,
			episode_id VARCHAR,
			name VARCHAR,
			entity_type VARCHAR,
			summary VARCHAR,
			group_id VARCHAR,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS extracted_edges (
			id VARCHAR PRIMARY KEY,
			episode_id VARCHAR,
			source_id VARCHAR,
			target_id VARCHAR,
			name VARCHAR,
			fact VARCHAR,
			group_id VARCHAR,
			valid_at TIMESTAMP,
			invalid_at TIMESTAMP,
			created_at TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal table: %w", err)
		}
	}
	return nil
}

// RecordEpisode journals an episode for later ingestion.
func (j *Journal) RecordEpisode(ctx context.Context, episode types.Episode) error {
	if episode.ID == "" {
		episode.ID = utils.GenerateUUID()
	}
	metadataJSON, err := json.Marshal(episode.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO episodes (
			id, name, content, source, source_description, reference,
			group_id, created_at, metadata, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)`,
		episode.ID,
		episode.Name,
		episode.Content,
		string(episode.Source),
		episode.SourceDescription,
		nullTime(episode.Reference),
		episode.GroupID,
		nullTime(utils.UTCNow()),
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to journal episode: %w", err)
	}
	return nil
}

// RecordResults stores what ingestion extracted from one episode.
func (j *Journal) RecordResults(ctx context.Context, result *types.AddEpisodeResults) error {
	if result == nil || result.Episode == nil {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	for _, node := range result.Nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO extracted_nodes (
				id, episode_id, name, entity_type, summary, group_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			node.ID, result.Episode.ID, node.Name, node.EntityType,
			node.Summary, node.GroupID, nullTime(node.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to journal node %s: %w", node.ID, err)
		}
	}
	for _, edge := range result.Edges {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO extracted_edges (
				id, episode_id, source_id, target_id, name, fact,
				group_id, valid_at, invalid_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			edge.ID, result.Episode.ID, edge.SourceID, edge.TargetID,
			edge.Name, edge.Fact, edge.GroupID,
			nullTime(edge.ValidAt), nullTimePtr(edge.InvalidAt),
			nullTime(edge.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to journal edge %s: %w", edge.ID, err)
		}
	}
	return tx.Commit()
}

// PendingEpisodes returns up to limit journaled episodes not yet
// ingested, oldest first.
func (j *Journal) PendingEpisodes(ctx context.Context, limit int) ([]types.Episode, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, content, source, source_description,
		       reference, group_id, metadata
		FROM episodes
		WHERE NOT processed
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending episodes: %w", err)
	}
	defer rows.Close()

	var out []types.Episode
	for rows.Next() {
		var episode types.Episode
		var source string
		var metadataRaw interface{}
		var reference sql.NullTime
		if err := rows.Scan(&episode.ID, &episode.Name, &episode.Content,
			&source, &episode.SourceDescription, &reference,
			&episode.GroupID, &metadataRaw); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episode.Source = types.EpisodeSource(source)
		if reference.Valid {
			episode.Reference = reference.Time.UTC()
		}
		// The duckdb driver may surface a JSON column as a decoded map
		// or as its raw text, depending on version.
		switch v := metadataRaw.(type) {
		case map[string]interface{}:
			episode.Metadata = v
		case string:
			if v != "" && v != "null" {
				_ = json.Unmarshal([]byte(v), &episode.Metadata)
			}
		case []byte:
			if len(v) > 0 && string(v) != "null" {
				_ = json.Unmarshal(v, &episode.Metadata)
			}
		}
		out = append(out, episode)
	}
	return out, rows.Err()
}

// MarkProcessed flags an episode as ingested.
func (j *Journal) MarkProcessed(ctx context.Context, episodeID string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE episodes SET processed = TRUE, processed_at = ? WHERE id = ?`,
		nullTime(utils.UTCNow()), episodeID)
	if err != nil {
		return fmt.Errorf("failed to mark episode processed: %w", err)
	}
	return nil
}

// PendingCount reports how many episodes await ingestion.
func (j *Journal) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx,
		`SELECT count(*) FROM episodes WHERE NOT processed`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
