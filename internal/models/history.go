package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryEntry is one persisted analysis run.
type HistoryEntry struct {
	ID            int64                   `json:"id"`
	Subject       string                  `json:"subject"`
	Context       map[string]string       `json:"context,omitempty"`
	CacheKey      string                  `json:"cache_key"`
	OverallStatus RecordStatus            `json:"overall_status"`
	Results       map[string]SourceResult `json:"results,omitempty"`
	Note          string                  `json:"note,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// HistoryService persists completed analysis records. The in-memory cache
// remains the correctness mechanism; history is an audit trail, and every
// write is best-effort from the caller's point of view.
type HistoryService struct {
	pool *pgxpool.Pool
}

func NewHistoryService(pool *pgxpool.Pool) *HistoryService {
	return &HistoryService{pool: pool}
}

// Record stores one completed run. A record that was already persisted for
// the same cache key and creation time yields ErrDuplicateRun.
func (s *HistoryService) Record(ctx context.Context, rec *AnalysisRecord) (*HistoryEntry, error) {
	contextJSON, err := json.Marshal(rec.Query.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query context: %w", err)
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (subject, context, cache_key, overall_status, results, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entry := &HistoryEntry{
		Subject:       rec.Query.Subject,
		Context:       rec.Query.Context,
		CacheKey:      rec.CacheKey,
		OverallStatus: rec.OverallStatus,
		Results:       rec.Results,
		Note:          rec.Note,
		CreatedAt:     rec.CreatedAt,
	}

	err = s.pool.QueryRow(ctx, query,
		rec.Query.Subject, contextJSON, rec.CacheKey, rec.OverallStatus, resultsJSON, rec.Note, rec.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateRun
		}
		return nil, fmt.Errorf("failed to record analysis run: %w", err)
	}

	return entry, nil
}

// Recent returns the latest persisted runs, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, subject, context, cache_key, overall_status, results, note, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry := &HistoryEntry{}
		var contextJSON, resultsJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.Subject,
			&contextJSON,
			&entry.CacheKey,
			&entry.OverallStatus,
			&resultsJSON,
			&entry.Note,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		if len(contextJSON) > 0 {
			_ = json.Unmarshal(contextJSON, &entry.Context)
		}
		if len(resultsJSON) > 0 {
			_ = json.Unmarshal(resultsJSON, &entry.Results)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis runs: %w", err)
	}
	return entries, nil
}

// BySubject returns the latest run for a normalized subject.
func (s *HistoryService) BySubject(ctx context.Context, subject string) (*HistoryEntry, error) {
	query := `
		SELECT id, subject, context, cache_key, overall_status, results, note, created_at
		FROM analysis_runs
		WHERE subject = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entry := &HistoryEntry{}
	var contextJSON, resultsJSON []byte
	err := s.pool.QueryRow(ctx, query, NormalizeSubject(subject)).Scan(
		&entry.ID,
		&entry.Subject,
		&contextJSON,
		&entry.CacheKey,
		&entry.OverallStatus,
		&resultsJSON,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get analysis run: %w", err)
	}
	if len(contextJSON) > 0 {
		_ = json.Unmarshal(contextJSON, &entry.Context)
	}
	if len(resultsJSON) > 0 {
		_ = json.Unmarshal(resultsJSON, &entry.Results)
	}
	return entry, nil
}

// CountByStatus returns run counts grouped by overall status.
func (s *HistoryService) CountByStatus(ctx context.Context) (map[RecordStatus]int, error) {
	query := `SELECT overall_status, COUNT(*) FROM analysis_runs GROUP BY overall_status`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count analysis runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[RecordStatus]int)
	for rows.Next() {
		var status RecordStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
