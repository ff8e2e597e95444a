package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norelinorth/norelinorth-ai-assistant/internal/assist"
)

var ErrNotOwner = errors.New("not permitted to access this session")

const recentLimit = 10

// Service owns the conversation flow: start a session, run one chat turn
// (persist the user turn, call the AI, persist the reply), list and read.
type Service struct {
	store  Store
	assist *assist.Service
	logger *logrus.Logger
}

func NewService(store Store, assistSvc *assist.Service, logger *logrus.Logger) *Service {
	return &Service{store: store, assist: assistSvc, logger: logger}
}

// Start opens a new conversation, optionally anchored to a subject record.
func (s *Service) Start(ctx context.Context, owner, subjectType, subjectID string) (*Session, error) {
	sess := &Session{
		Owner:       owner,
		Status:      StatusActive,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		StartedOn:   time.Now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Chat appends the user turn, calls the AI with the supplied context, appends
// the assistant turn and bumps last_activity. The user turn is persisted even
// when the AI call fails, so the conversation shows what was asked.
func (s *Service) Chat(ctx context.Context, caller, sessionID, prompt, contextJSON string) (string, error) {
	// A rejected prompt must leave no turn behind.
	if strings.TrimSpace(prompt) == "" {
		return "", assist.ErrEmptyPrompt
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Owner != caller {
		return "", ErrNotOwner
	}

	if err := s.store.AppendTurn(ctx, &Turn{
		SessionID: sess.ID,
		Role:      "user",
		Content:   prompt,
	}); err != nil {
		return "", err
	}

	reply, err := s.assist.CallAI(ctx, &assist.CallRequest{
		Prompt:  prompt,
		Context: contextJSON,
		Source:  "ai_assistant",
		User:    caller,
	})
	if err != nil {
		return "", err
	}

	if err := s.store.AppendTurn(ctx, &Turn{
		SessionID: sess.ID,
		Role:      "assistant",
		Content:   reply,
	}); err != nil {
		return "", err
	}

	if err := s.store.TouchSession(ctx, sess.ID, time.Now().UTC()); err != nil {
		s.logger.WithError(err).WithField("session", sess.ID).Warn("failed to bump session activity")
	}

	return reply, nil
}

// Recent lists the caller's newest sessions.
func (s *Service) Recent(ctx context.Context, caller string) ([]*Session, error) {
	return s.store.ListRecent(ctx, caller, recentLimit)
}

// Turns returns a session and its ordered turns after an ownership check.
func (s *Service) Turns(ctx context.Context, caller, sessionID string) (*Session, []*Turn, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Owner != caller {
		return nil, nil, ErrNotOwner
	}
	turns, err := s.store.ListTurns(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, turns, nil
}
