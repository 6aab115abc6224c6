package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

const sessionColumns = `id, owner, name, kind, spec, status, total_expected, completed, created_at, completed_at`

// SessionStore implements store.SessionRepository on Postgres.
type SessionStore struct {
	pool  Pool
	table string
}

var _ store.SessionRepository = (*SessionStore)(nil)

// NewSessionStore wraps an existing pool.
func NewSessionStore(pool Pool, table string) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultSessionsTable)
	if err != nil {
		return nil, err
	}
	return &SessionStore{pool: pool, table: name}, nil
}

// CreateSession inserts a new session row.
func (s *SessionStore) CreateSession(ctx context.Context, session audit.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	spec, err := json.Marshal(session.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, s.table, sessionColumns)
	_, err = s.pool.Exec(ctx, query,
		session.ID,
		session.Owner,
		session.Name,
		string(session.Kind),
		spec,
		string(session.Status),
		session.TotalExpected,
		session.Completed,
		session.CreatedAt,
		session.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// IncrementCompleted bumps the completed counter, clamped at the total.
func (s *SessionStore) IncrementCompleted(ctx context.Context, id string) (int, error) {
	query := fmt.Sprintf(`
UPDATE %s SET completed = LEAST(completed + 1, total_expected)
WHERE id = $1
RETURNING completed`, s.table)
	var completed int
	if err := s.pool.QueryRow(ctx, query, id).Scan(&completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("increment completed: %w", err)
	}
	return completed, nil
}

// TransitionStatus moves a running session to status to.
func (s *SessionStore) TransitionStatus(ctx context.Context, id string, to audit.Status, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s SET status = $1, completed_at = $2
WHERE id = $3 AND status = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(to), at, id, string(audit.StatusRunning))
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var one int
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, s.table), id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return false, nil
}

// GetSession loads a session by id.
func (s *SessionStore) GetSession(ctx context.Context, id string) (audit.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, sessionColumns, s.table)
	session, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Session{}, store.ErrNotFound
		}
		return audit.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(ctx context.Context, filter audit.SessionFilter) ([]audit.Session, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1) AND ($2 = '' OR owner = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, sessionColumns, s.table)
	var status any
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	rows, err := s.pool.Query(ctx, query, status, filter.Owner, limitArg(filter.Limit), max(0, filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []audit.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes the session row.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (audit.Session, error) {
	var (
		session audit.Session
		kind    string
		status  string
		spec    []byte
	)
	err := row.Scan(
		&session.ID,
		&session.Owner,
		&session.Name,
		&kind,
		&spec,
		&status,
		&session.TotalExpected,
		&session.Completed,
		&session.CreatedAt,
		&session.CompletedAt,
	)
	if err != nil {
		return audit.Session{}, err
	}
	session.Kind = audit.Kind(kind)
	if session.Status, err = audit.ParseStatus(status); err != nil {
		return audit.Session{}, err
	}
	if len(spec) > 0 {
		if err := json.Unmarshal(spec, &session.Spec); err != nil {
			return audit.Session{}, fmt.Errorf("decode spec: %w", err)
		}
	}
	return session, nil
}
