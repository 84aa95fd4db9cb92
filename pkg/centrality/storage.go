package centrality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/utils"
)

const (
	// StorageBatchSize is how many nodes one write batch updates.
	StorageBatchSize = 100
	// CheckpointInterval is how many nodes pass between checkpoints.
	CheckpointInterval = 500
	// StorageMaxRetries bounds per-batch write retries.
	StorageMaxRetries = 3

	storageRetryBackoff = 500 * time.Millisecond

	// TxStatusPending through TxStatusRolledBack track a transaction
	// node's lifecycle.
	TxStatusPending    = "pending"
	TxStatusInProgress = "in_progress"
	TxStatusCommitted  = "committed"
	TxStatusFailed     = "failed"
	TxStatusRolledBack = "rolled_back"
)

// AtomicStorage persists centrality scores in batches under a
// CentralityTransaction log node, so interrupted runs can be rolled back
// or resumed from the last checkpoint. A process-local mutex serializes
// write transactions; concurrent Store calls queue rather than
// interleave batches.
type AtomicStorage struct {
	driver driver.GraphDriver
	logger *slog.Logger
	mu     sync.Mutex
}

// NewAtomicStorage creates the storage layer.
func NewAtomicStorage(d driver.GraphDriver, logger *slog.Logger) *AtomicStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomicStorage{driver: d, logger: logger}
}

// Store validates and writes the metrics for one group. Returns the
// transaction id; on failure the already written batches are rolled back.
func (s *AtomicStorage) Store(ctx context.Context, groupID string, metrics *Metrics) (string, error) {
	if err := validateMetrics(metrics); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(metrics.PageRank))
	for id := range metrics.PageRank {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	txID := utils.GenerateUUID()
	if err := s.createTransaction(ctx, txID, groupID, len(ids)); err != nil {
		return "", err
	}
	if err := s.setStatus(ctx, txID, TxStatusInProgress); err != nil {
		s.logger.Warn("failed to mark transaction in progress", "tx_id", txID, "error", err)
	}

	written := 0
	sinceCheckpoint := 0
	for start := 0; start < len(ids); start += StorageBatchSize {
		end := start + StorageBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.writeBatchWithRetry(ctx, groupID, txID, ids[start:end], metrics); err != nil {
			s.logger.Error("centrality batch write failed, rolling back",
				"tx_id", txID, "written", written, "error", err)
			if stErr := s.setStatus(ctx, txID, TxStatusFailed); stErr != nil {
				s.logger.Warn("failed to mark transaction failed", "tx_id", txID, "error", stErr)
			}
			if rbErr := s.Rollback(ctx, txID, groupID); rbErr != nil {
				s.logger.Error("rollback failed", "tx_id", txID, "error", rbErr)
			}
			return txID, fmt.Errorf("failed to write centrality batch: %w", err)
		}
		written += end - start
		sinceCheckpoint += end - start
		if sinceCheckpoint >= CheckpointInterval {
			if err := s.checkpoint(ctx, txID, written); err != nil {
				s.logger.Warn("checkpoint update failed", "tx_id", txID, "error", err)
			}
			sinceCheckpoint = 0
		}
	}

	if err := s.commit(ctx, txID, written); err != nil {
		return txID, err
	}
	return txID, nil
}

// Resume continues a pending transaction from its checkpoint, rewriting
// only the nodes past it.
func (s *AtomicStorage) Resume(ctx context.Context, txID, groupID string, metrics *Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint, status, err := s.transactionState(ctx, txID)
	if err != nil {
		return err
	}
	if status != TxStatusPending && status != TxStatusInProgress {
		return fmt.Errorf("transaction %s is %s, not resumable", txID, status)
	}
	if err := s.setStatus(ctx, txID, TxStatusInProgress); err != nil {
		s.logger.Warn("failed to mark transaction in progress", "tx_id", txID, "error", err)
	}

	ids := make([]string, 0, len(metrics.PageRank))
	for id := range metrics.PageRank {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if checkpoint > len(ids) {
		checkpoint = len(ids)
	}

	written := checkpoint
	for start := checkpoint; start < len(ids); start += StorageBatchSize {
		end := start + StorageBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.writeBatchWithRetry(ctx, groupID, txID, ids[start:end], metrics); err != nil {
			return fmt.Errorf("failed to resume transaction %s: %w", txID, err)
		}
		written += end - start
	}
	return s.commit(ctx, txID, written)
}

// Rollback clears the centrality properties written under a transaction
// and marks it rolled back.
func (s *AtomicStorage) Rollback(ctx context.Context, txID, groupID string) error {
	_, _, _, err := s.driver.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		WHERE n.centrality_transaction_id = $tx_id
		REMOVE n.centrality_pagerank, n.centrality_degree,
		       n.centrality_betweenness, n.centrality_importance,
		       n.centrality_transaction_id, n.centrality_updated_at,
		       n.centrality_schema_version`,
		map[string]interface{}{"group_id": groupID, "tx_id": txID})
	if err != nil {
		return fmt.Errorf("failed to clear scores for transaction %s: %w", txID, err)
	}
	return s.setStatus(ctx, txID, TxStatusRolledBack)
}

func (s *AtomicStorage) createTransaction(ctx context.Context, txID, groupID string, total int) error {
	_, _, _, err := s.driver.ExecuteQuery(`
		CREATE (t:CentralityTransaction {
			uuid: $tx_id, group_id: $group_id, status: $status,
			total: $total, checkpoint: 0, started_at: $started_at
		})`,
		map[string]interface{}{
			"tx_id":      txID,
			"group_id":   groupID,
			"status":     TxStatusPending,
			"total":      total,
			"started_at": utils.FormatTimeForDB(utils.UTCNow()),
		})
	if err != nil {
		return fmt.Errorf("failed to create transaction log: %w", err)
	}
	return nil
}

func (s *AtomicStorage) writeBatchWithRetry(ctx context.Context, groupID, txID string, ids []string, metrics *Metrics) error {
	rows := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = map[string]interface{}{
			"uuid":        id,
			"pagerank":    metrics.PageRank[id],
			"degree":      metrics.Degree[id],
			"betweenness": metrics.Betweenness[id],
			"importance":  metrics.Importance[id],
		}
	}

	var lastErr error
	backoff := storageRetryBackoff
	for attempt := 0; attempt < StorageMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		_, _, _, err := s.driver.ExecuteQuery(`
			UNWIND $rows AS row
			MATCH (n:Entity {uuid: row.uuid, group_id: $group_id})
			SET n.centrality_pagerank = row.pagerank,
			    n.centrality_degree = row.degree,
			    n.centrality_betweenness = row.betweenness,
			    n.centrality_importance = row.importance,
			    n.centrality_transaction_id = $tx_id,
			    n.centrality_updated_at = $updated_at,
			    n.centrality_schema_version = $schema_version`,
			map[string]interface{}{
				"rows":           rows,
				"group_id":       groupID,
				"tx_id":          txID,
				"updated_at":     utils.FormatTimeForDB(utils.UTCNow()),
				"schema_version": SchemaLatest.String(),
			})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (s *AtomicStorage) checkpoint(ctx context.Context, txID string, written int) error {
	_, _, _, err := s.driver.ExecuteQuery(`
		MATCH (t:CentralityTransaction {uuid: $tx_id})
		SET t.checkpoint = $checkpoint`,
		map[string]interface{}{"tx_id": txID, "checkpoint": written})
	return err
}

func (s *AtomicStorage) commit(ctx context.Context, txID string, written int) error {
	_, _, _, err := s.driver.ExecuteQuery(`
		MATCH (t:CentralityTransaction {uuid: $tx_id})
		SET t.status = $status, t.checkpoint = $checkpoint,
		    t.completed_at = $completed_at`,
		map[string]interface{}{
			"tx_id":        txID,
			"status":       TxStatusCommitted,
			"checkpoint":   written,
			"completed_at": utils.FormatTimeForDB(utils.UTCNow()),
		})
	if err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", txID, err)
	}

	// Importance index speeds up ranked retrieval; creation is
	// idempotent.
	_, _, _, err = s.driver.ExecuteQuery(
		`CREATE INDEX entity_importance IF NOT EXISTS FOR (n:Entity) ON (n.centrality_importance)`,
		nil)
	if err != nil {
		s.logger.Warn("failed to create importance index", "error", err)
	}
	return nil
}

func (s *AtomicStorage) setStatus(ctx context.Context, txID, status string) error {
	_, _, _, err := s.driver.ExecuteQuery(`
		MATCH (t:CentralityTransaction {uuid: $tx_id})
		SET t.status = $status`,
		map[string]interface{}{"tx_id": txID, "status": status})
	return err
}

func (s *AtomicStorage) transactionState(ctx context.Context, txID string) (int, string, error) {
	records, _, _, err := s.driver.ExecuteQuery(`
		MATCH (t:CentralityTransaction {uuid: $tx_id})
		RETURN t.checkpoint AS checkpoint, t.status AS status`,
		map[string]interface{}{"tx_id": txID})
	if err != nil {
		return 0, "", fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}
	rows, ok := records.([]map[string]interface{})
	if !ok || len(rows) == 0 {
		return 0, "", fmt.Errorf("transaction %s not found", txID)
	}
	checkpoint := 0
	if v, ok := rows[0]["checkpoint"].(int64); ok {
		checkpoint = int(v)
	}
	status, _ := rows[0]["status"].(string)
	return checkpoint, status, nil
}

// validateMetrics rejects scores that would corrupt ranking. Pagerank
// and betweenness are normalized metrics and must stay in [0, 1].
func validateMetrics(metrics *Metrics) error {
	check := func(name string, scores map[string]float64, bounded bool) error {
		for id, v := range scores {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("invalid %s score for %s: %v", name, id, v)
			}
			if v < 0 {
				return fmt.Errorf("negative %s score for %s: %v", name, id, v)
			}
			if bounded && v > 1 {
				return fmt.Errorf("%s score for %s out of range [0, 1]: %v", name, id, v)
			}
		}
		return nil
	}
	if err := check("pagerank", metrics.PageRank, true); err != nil {
		return err
	}
	if err := check("degree", metrics.Degree, false); err != nil {
		return err
	}
	if err := check("betweenness", metrics.Betweenness, true); err != nil {
		return err
	}
	for id := range metrics.PageRank {
		if _, ok := metrics.Degree[id]; !ok {
			return fmt.Errorf("degree score missing for %s", id)
		}
	}
	return nil
}
