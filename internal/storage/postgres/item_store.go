// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// ItemStoreConfig controls the Postgres connection pool.
type ItemStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ItemStore implements store.ItemRepository and store.AttemptRepository
// on Postgres.
type ItemStore struct {
	pool pgxPool
}

// NewItemStore creates a Postgres-backed ItemStore using the provided config.
func NewItemStore(ctx context.Context, cfg ItemStoreConfig) (*ItemStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ItemStore{pool: pool}, nil
}

// NewItemStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewItemStoreWithPool(pool pgxPool) (*ItemStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ItemStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ItemStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const itemColumns = `
	id,
	track_id,
	group_key,
	payload,
	status,
	word_count,
	created_at,
	annotated_at,
	validated_at,
	published_at,
	status_changed_at,
	annotator_id,
	validator_id,
	status_reason`

// ListItems loads the snapshot matching the selector in one filtered read.
func (s *ItemStore) ListItems(ctx context.Context, sel store.Selector) ([]pipeline.WorkItem, error) {
	rows, err := s.queryItems(ctx, sel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []pipeline.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read work items: %w", err)
	}
	return items, nil
}

// IterItems opens a streaming read over the same set. The returned
// iterator owns the cursor; Close releases it.
func (s *ItemStore) IterItems(ctx context.Context, sel store.Selector) (store.ItemIterator, error) {
	rows, err := s.queryItems(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &rowsIterator{rows: rows}, nil
}

func (s *ItemStore) queryItems(ctx context.Context, sel store.Selector) (pgx.Rows, error) {
	query := `SELECT` + itemColumns + `
FROM work_items
WHERE track_id = $1 AND ($2::text[] IS NULL OR group_key = $2)
ORDER BY created_at, id`

	var key []string
	if len(sel.GroupKey) > 0 {
		key = sel.GroupKey
	}
	rows, err := s.pool.Query(ctx, query, sel.TrackID, key)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	return rows, nil
}

// BatchSetStatus moves every listed item to the target status in one
// round trip, stamping the matching per-stage timestamp.
func (s *ItemStore) BatchSetStatus(
	ctx context.Context,
	ids []string,
	target pipeline.Status,
	at time.Time,
	reason string,
) error {
	if len(ids) == 0 {
		return nil
	}
	if !target.Valid() {
		return fmt.Errorf("unknown target status %q", target)
	}
	query := `
UPDATE work_items SET
	status = $1,
	status_reason = $2,
	status_changed_at = $3,
	annotated_at = CASE WHEN $1 = 'ANNOTATED' THEN $3 ELSE annotated_at END,
	validated_at = CASE WHEN $1 = 'VALIDATED' THEN $3 ELSE validated_at END,
	published_at = CASE WHEN $1 = 'PUBLISHED' THEN $3 ELSE published_at END
WHERE id = ANY($4)`

	tag, err := s.pool.Exec(ctx, query, string(target), reason, at, ids)
	if err != nil {
		return fmt.Errorf("batch status update: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("batch status update touched %d of %d items", tag.RowsAffected(), len(ids))
	}
	return nil
}

// MonthlyStatusCounts returns month-bucketed counts of items reaching the
// reporting statuses for one track.
func (s *ItemStore) MonthlyStatusCounts(ctx context.Context, trackID int) ([]store.MonthlyCount, error) {
	query := `
SELECT month, status, n FROM (
	SELECT date_trunc('month', annotated_at) AS month, 'ANNOTATED' AS status, COUNT(*) AS n
	FROM work_items WHERE track_id = $1 AND annotated_at IS NOT NULL GROUP BY 1
	UNION ALL
	SELECT date_trunc('month', validated_at), 'VALIDATED', COUNT(*)
	FROM work_items WHERE track_id = $1 AND validated_at IS NOT NULL GROUP BY 1
	UNION ALL
	SELECT date_trunc('month', published_at), 'PUBLISHED', COUNT(*)
	FROM work_items WHERE track_id = $1 AND published_at IS NOT NULL GROUP BY 1
	UNION ALL
	SELECT date_trunc('month', status_changed_at), 'PUBLISH_FAILED', COUNT(*)
	FROM work_items WHERE track_id = $1 AND status = 'PUBLISH_FAILED' AND status_changed_at IS NOT NULL GROUP BY 1
) buckets
ORDER BY month, status`

	rows, err := s.pool.Query(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("query monthly counts: %w", err)
	}
	defer rows.Close()

	var counts []store.MonthlyCount
	for rows.Next() {
		var c store.MonthlyCount
		var status string
		if err := rows.Scan(&c.Month, &status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan monthly count: %w", err)
		}
		c.Status = pipeline.Status(status)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read monthly counts: %w", err)
	}
	return counts, nil
}

// RecordAttempt stores a new publish attempt.
func (s *ItemStore) RecordAttempt(ctx context.Context, attempt store.PublishAttempt) error {
	query := `
INSERT INTO publish_attempts (id, track_id, group_key, state, reason, started_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		attempt.ID,
		attempt.TrackID,
		[]string(attempt.GroupKey),
		string(attempt.State),
		attempt.Reason,
		attempt.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert publish attempt: %w", err)
	}
	return nil
}

// SetAttemptState finalizes an attempt's state. Terminal states also stamp
// resolved_at.
func (s *ItemStore) SetAttemptState(
	ctx context.Context,
	attemptID string,
	state store.AttemptState,
	reason string,
	at time.Time,
) error {
	query := `
UPDATE publish_attempts SET
	state = $1,
	reason = $2,
	resolved_at = CASE WHEN $1 IN ('succeeded', 'failed') THEN $3 ELSE resolved_at END
WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query, string(state), reason, at, attemptID)
	if err != nil {
		return fmt.Errorf("update publish attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetAttempt loads a single attempt or returns store.ErrNotFound.
func (s *ItemStore) GetAttempt(ctx context.Context, attemptID string) (store.PublishAttempt, error) {
	query := `
SELECT id, track_id, group_key, state, reason, started_at, resolved_at
FROM publish_attempts
WHERE id = $1`

	attempt, err := scanAttempt(s.pool.QueryRow(ctx, query, attemptID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.PublishAttempt{}, store.ErrNotFound
		}
		return store.PublishAttempt{}, fmt.Errorf("get publish attempt: %w", err)
	}
	return attempt, nil
}

// UnresolvedAttempt returns the pending uncertain attempt for a group, if
// any.
func (s *ItemStore) UnresolvedAttempt(
	ctx context.Context,
	trackID int,
	key pipeline.GroupKey,
) (store.PublishAttempt, error) {
	query := `
SELECT id, track_id, group_key, state, reason, started_at, resolved_at
FROM publish_attempts
WHERE track_id = $1 AND group_key = $2 AND state = 'uncertain' AND resolved_at IS NULL
ORDER BY started_at DESC
LIMIT 1`

	attempt, err := scanAttempt(s.pool.QueryRow(ctx, query, trackID, []string(key)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.PublishAttempt{}, store.ErrNotFound
		}
		return store.PublishAttempt{}, fmt.Errorf("get unresolved attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts pages through a track's attempts, newest first.
func (s *ItemStore) ListAttempts(ctx context.Context, trackID int, limit, offset int) ([]store.PublishAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, track_id, group_key, state, reason, started_at, resolved_at
FROM publish_attempts
WHERE track_id = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, trackID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query publish attempts: %w", err)
	}
	defer rows.Close()

	var attempts []store.PublishAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publish attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read publish attempts: %w", err)
	}
	return attempts, nil
}

type rowsIterator struct {
	rows pgx.Rows
}

func (it *rowsIterator) Next(ctx context.Context) (pipeline.WorkItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.WorkItem{}, false, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return pipeline.WorkItem{}, false, fmt.Errorf("read work items: %w", err)
		}
		return pipeline.WorkItem{}, false, nil
	}
	item, err := scanItem(it.rows)
	if err != nil {
		return pipeline.WorkItem{}, false, fmt.Errorf("scan work item: %w", err)
	}
	return item, true, nil
}

func (it *rowsIterator) Close() {
	it.rows.Close()
}

func scanItem(row pgx.Row) (pipeline.WorkItem, error) {
	var (
		item       pipeline.WorkItem
		key        []string
		payloadRaw []byte
		status     string
	)
	err := row.Scan(
		&item.ID,
		&item.TrackID,
		&key,
		&payloadRaw,
		&status,
		&item.WordCount,
		&item.CreatedAt,
		&item.AnnotatedAt,
		&item.ValidatedAt,
		&item.PublishedAt,
		&item.StatusChangedAt,
		&item.AnnotatorID,
		&item.ValidatorID,
		&item.StatusReason,
	)
	if err != nil {
		return pipeline.WorkItem{}, err
	}
	item.GroupKey = pipeline.GroupKey(key)
	item.Status = pipeline.Status(status)
	if len(payloadRaw) > 0 {
		// An unreadable payload isolates to this item: it keeps a nil
		// payload (zero word count) instead of failing the snapshot.
		var payload map[string]string
		if jsonErr := json.Unmarshal(payloadRaw, &payload); jsonErr == nil {
			item.Payload = payload
		}
	}
	return item, nil
}

func scanAttempt(row pgx.Row) (store.PublishAttempt, error) {
	var (
		attempt store.PublishAttempt
		key     []string
		state   string
	)
	err := row.Scan(
		&attempt.ID,
		&attempt.TrackID,
		&key,
		&state,
		&attempt.Reason,
		&attempt.StartedAt,
		&attempt.ResolvedAt,
	)
	if err != nil {
		return store.PublishAttempt{}, err
	}
	attempt.GroupKey = pipeline.GroupKey(key)
	attempt.State = store.AttemptState(state)
	return attempt, nil
}
