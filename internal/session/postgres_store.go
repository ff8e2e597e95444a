package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO ai_sessions (owner, status, subject_type, subject_id, started_on, last_activity)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query,
		sess.Owner, sess.Status, sess.SubjectType, sess.SubjectID, sess.StartedOn,
	).Scan(&sess.ID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	sess.LastActivity = sess.StartedOn
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, owner, status, subject_type, subject_id, started_on, last_activity
		FROM ai_sessions
		WHERE id = $1
	`
	var sess Session
	err := s.db.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.Owner, &sess.Status, &sess.SubjectType, &sess.SubjectID,
		&sess.StartedOn, &sess.LastActivity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, owner string, limit int) ([]*Session, error) {
	query := `
		SELECT id, owner, status, subject_type, subject_id, started_on, last_activity
		FROM ai_sessions
		WHERE owner = $1
		ORDER BY last_activity DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		err := rows.Scan(
			&sess.ID, &sess.Owner, &sess.Status, &sess.SubjectType, &sess.SubjectID,
			&sess.StartedOn, &sess.LastActivity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE ai_sessions SET last_activity = $2 WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn *Turn) error {
	query := `
		INSERT INTO ai_messages (session_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query, turn.SessionID, turn.Role, turn.Content).
		Scan(&turn.ID, &turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID string) ([]*Turn, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM ai_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}
