package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/workflow"
)

const uniqueViolation = "23505"

// PostgresStore persists attempts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed attempt store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attempts (
			id, session_id, scenario, number, outcome, message,
			frames, rejections, started_at, finished_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.SessionID, string(a.Scenario), a.Number, a.Outcome.String(), nullString(a.Message),
		a.Frames, a.Rejections, a.StartedAt, a.FinishedAt, a.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateAttempt
	}
	return err
}

func (p *PostgresStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, session_id, scenario, number, outcome, message,
		       frames, rejections, started_at, finished_at, created_at
		FROM attempts WHERE id = $1`, id)

	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (p *PostgresStore) ListAttempts(ctx context.Context, limit int, opts ...ListOption) ([]*Attempt, error) {
	o := applyListOpts(opts)

	query := `
		SELECT id, session_id, scenario, number, outcome, message,
		       frames, rejections, started_at, finished_at, created_at
		FROM attempts WHERE TRUE`
	var args []any
	if o.sessionID != "" {
		args = append(args, o.sessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if o.cursor != nil {
		args = append(args, o.cursor.CreatedAt, o.cursor.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(sc scanner) (*Attempt, error) {
	a := &Attempt{}
	var scenario, outcome string
	var message sql.NullString

	err := sc.Scan(
		&a.ID, &a.SessionID, &scenario, &a.Number, &outcome, &message,
		&a.Frames, &a.Rejections, &a.StartedAt, &a.FinishedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Scenario = antispoof.Scenario(scenario)
	a.Message = message.String
	state, err := workflow.ParseState(outcome)
	if err != nil {
		return nil, fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	a.Outcome = state
	return a, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
