// Package session is the conversation ledger: sessions optionally anchored to
// a business-record subject, plus their ordered user/assistant turns.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionStatus string

const (
	StatusActive SessionStatus = "Active"
	StatusClosed SessionStatus = "Closed"
)

type Session struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner"`
	Status       SessionStatus `json:"status"`
	SubjectType  string        `json:"subject_type,omitempty"`
	SubjectID    string        `json:"subject_id,omitempty"`
	StartedOn    time.Time     `json:"started_on"`
	LastActivity time.Time     `json:"last_activity"`
}

type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListRecent(ctx context.Context, owner string, limit int) ([]*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	AppendTurn(ctx context.Context, turn *Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]*Turn, error)
}
