package assist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/norelinorth/norelinorth-ai-assistant/internal/provider"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/tracing"
)

// CallRequest is one AI invocation. Context is a JSON document or free text
// describing the subject; Model overrides the configured default; Source tags
// the originating system for trace filtering.
type CallRequest struct {
	Prompt  string
	Context string
	Model   string
	System  string
	Source  string
	User    string
}

// Service is the single choke point for AI calls: resolve credentials, build
// the message list, dispatch under the observability wrapper.
type Service struct {
	resolver   *provider.Resolver
	dispatcher *Dispatcher
	wrapper    *tracing.Wrapper
	logger     *logrus.Logger
}

func NewService(resolver *provider.Resolver, dispatcher *Dispatcher, wrapper *tracing.Wrapper, logger *logrus.Logger) *Service {
	return &Service{
		resolver:   resolver,
		dispatcher: dispatcher,
		wrapper:    wrapper,
		logger:     logger,
	}
}

// CallAI forwards the prompt to the configured provider and returns the
// assistant text.
func (s *Service) CallAI(ctx context.Context, req *CallRequest) (string, error) {
	creds, err := s.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return "", err
	}

	messages, err := BuildMessages(req.Prompt, req.Context, req.System)
	if err != nil {
		return "", err
	}

	call := &Call{
		BaseURL:     creds.BaseURL,
		APIKey:      creds.APIKey,
		Model:       creds.Model,
		Messages:    messages,
		Temperature: creds.Temperature,
		MaxTokens:   creds.MaxTokens,
	}

	subjectType, subjectID := subjectFromContext(req.Context)
	obs := tracing.Observation{
		Name:        traceName(req.Source, subjectType),
		User:        req.User,
		Source:      req.Source,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Model:       creds.Model,
		Input:       messages,
		Metadata: map[string]any{
			"provider":    creds.Provider,
			"temperature": creds.Temperature,
			"max_tokens":  creds.MaxTokens,
			"has_context": req.Context != "",
		},
	}

	result, err := s.wrapper.Call(ctx, obs, func(ctx context.Context) (*tracing.Result, error) {
		completion, err := s.dispatcher.Dispatch(ctx, call)
		if err != nil {
			return nil, err
		}
		return &tracing.Result{
			Output: completion.Content,
			Usage: tracing.Usage{
				Input:  completion.Usage.PromptTokens,
				Output: completion.Usage.CompletionTokens,
				Total:  completion.Usage.TotalTokens,
			},
		}, nil
	})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// GenerateText is the forgiving variant for embedding in host workflows: it
// never returns an error, only text the host can show as-is.
func (s *Service) GenerateText(ctx context.Context, prompt string, req *CallRequest) string {
	if req == nil {
		req = &CallRequest{}
	}
	req.Prompt = prompt

	reply, err := s.CallAI(ctx, req)
	if err != nil {
		s.logger.WithError(err).Error("AI call failed")
		switch {
		case isConfigError(err):
			return err.Error() + ". Please check AI provider settings."
		default:
			return "AI analysis failed. Please check the error log for details."
		}
	}
	return reply
}

// ValidationResult reports whether the provider is usable.
type ValidationResult struct {
	Configured bool `json:"configured"`
	Active     bool `json:"active"`
}

// Validate checks the configuration shape without issuing a call.
func (s *Service) Validate(ctx context.Context, cfg *provider.Config) ValidationResult {
	if cfg == nil {
		return ValidationResult{}
	}
	configured := strings.TrimSpace(cfg.Provider) != "" &&
		s.resolver.KeyStatus(ctx) == provider.KeyStatusSet
	return ValidationResult{Configured: configured, Active: cfg.IsActive}
}

// TestConnection issues a minimal live round trip against the provider.
func (s *Service) TestConnection(ctx context.Context) error {
	_, err := s.CallAI(ctx, &CallRequest{
		Prompt: "Test connection",
		System: "Reply with 'Connection successful'",
		Source: "config_validation",
	})
	return err
}

func isConfigError(err error) bool {
	for _, sentinel := range []error{
		provider.ErrNotConfigured, provider.ErrInactive,
		provider.ErrMissingCredential, provider.ErrMissingBaseURL, provider.ErrMissingModel,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// subjectFromContext pulls the business-record identity out of a structured
// context, when present. The convention is context.scalar._doctype/_name.
func subjectFromContext(raw string) (subjectType, subjectID string) {
	if raw == "" {
		return "", ""
	}
	var parsed struct {
		Scalar map[string]any `json:"scalar"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Scalar == nil {
		return "", ""
	}
	if v, ok := parsed.Scalar["_doctype"].(string); ok {
		subjectType = v
	}
	if v, ok := parsed.Scalar["_name"].(string); ok {
		subjectID = v
	}
	return subjectType, subjectID
}

// traceName builds a readable trace title from the source tag and subject,
// e.g. "ai_assistant" + "Sales Order" -> "Ai Assistant - Sales Order".
func traceName(source, subjectType string) string {
	name := "AI Completion"
	if source != "" {
		words := strings.Fields(strings.ReplaceAll(source, "_", " "))
		for i, w := range words {
			r, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
		name = strings.Join(words, " ")
	}
	if subjectType != "" {
		name = name + " - " + subjectType
	}
	return name
}
