package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

const resultColumns = `id, session_id, kind, url, browser, width, height, error, payload, created_at`

// payload holds the kind specific part of a result in the jsonb column.
type payload struct {
	Capture       *audit.Capture             `json:"capture,omitempty"`
	Heading       *audit.HeadingReport       `json:"heading,omitempty"`
	Phone         *audit.PhoneReport         `json:"phone,omitempty"`
	Accessibility *audit.AccessibilityReport `json:"accessibility,omitempty"`
	Performance   *audit.PerformanceReport   `json:"performance,omitempty"`
	VisualDiff    *audit.VisualDiffReport    `json:"visual_diff,omitempty"`
	Unified       *audit.UnifiedScore        `json:"unified,omitempty"`
}

// ResultStore implements store.ResultRepository on Postgres.
type ResultStore struct {
	pool  Pool
	table string
}

var _ store.ResultRepository = (*ResultStore)(nil)

// NewResultStore wraps an existing pool.
func NewResultStore(pool Pool, table string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultResultsTable)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: name}, nil
}

// SaveResult inserts a result row.
func (s *ResultStore) SaveResult(ctx context.Context, result audit.Result) error {
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}
	body, err := json.Marshal(payload{
		Capture:       result.Capture,
		Heading:       result.Heading,
		Phone:         result.Phone,
		Accessibility: result.Accessibility,
		Performance:   result.Performance,
		VisualDiff:    result.VisualDiff,
		Unified:       result.Unified,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, s.table, resultColumns)
	_, err = s.pool.Exec(ctx, query,
		result.ID,
		result.SessionID,
		string(result.Kind),
		result.URL,
		string(result.Browser),
		result.Viewport.Width,
		result.Viewport.Height,
		result.Error,
		body,
		result.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns the session's results in creation order.
func (s *ResultStore) ListResults(ctx context.Context, sessionID string) ([]audit.Result, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE session_id = $1 ORDER BY created_at, id`, resultColumns, s.table)
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []audit.Result{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// LatestResult returns the newest result of kind in the session.
func (s *ResultStore) LatestResult(ctx context.Context, sessionID string, kind audit.Kind) (audit.Result, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE session_id = $1 AND kind = $2
ORDER BY created_at DESC, id DESC
LIMIT 1`, resultColumns, s.table)
	result, err := scanResult(s.pool.QueryRow(ctx, query, sessionID, string(kind)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Result{}, store.ErrNotFound
		}
		return audit.Result{}, fmt.Errorf("latest result: %w", err)
	}
	return result, nil
}

// DeleteResults removes every result of the session.
func (s *ResultStore) DeleteResults(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, s.table), sessionID); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	return nil
}

func scanResult(row pgx.Row) (audit.Result, error) {
	var (
		result  audit.Result
		kind    string
		browser string
		body    []byte
	)
	err := row.Scan(
		&result.ID,
		&result.SessionID,
		&kind,
		&result.URL,
		&browser,
		&result.Viewport.Width,
		&result.Viewport.Height,
		&result.Error,
		&body,
		&result.CreatedAt,
	)
	if err != nil {
		return audit.Result{}, err
	}
	result.Kind = audit.Kind(kind)
	result.Browser = audit.Browser(browser)
	if len(body) > 0 {
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			return audit.Result{}, fmt.Errorf("decode payload: %w", err)
		}
		result.Capture = p.Capture
		result.Heading = p.Heading
		result.Phone = p.Phone
		result.Accessibility = p.Accessibility
		result.Performance = p.Performance
		result.VisualDiff = p.VisualDiff
		result.Unified = p.Unified
	}
	return result, nil
}
