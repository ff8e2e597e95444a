package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolution failures. These are configuration problems, fatal to the current
// call, and are surfaced to the caller as-is.
var (
	ErrNotConfigured     = errors.New("AI provider is not configured")
	ErrInactive          = errors.New("AI provider is not active")
	ErrMissingCredential = errors.New("API key not configured")
	ErrMissingBaseURL    = errors.New("API base URL not configured")
	ErrMissingModel      = errors.New("no AI model configured")
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// Generation defaults applied when the configuration leaves the overrides
// unset.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// Credentials is the validated, typed result of a resolve. It carries the one
// secret the dispatcher needs and is never persisted or serialized.
type Credentials struct {
	APIKey      string
	BaseURL     string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Resolver validates the stored provider configuration and extracts usable
// credentials. It is read-only and safe for concurrent use.
type Resolver struct {
	store  Store
	sealer *Sealer
	logger *logrus.Logger
}

func NewResolver(store Store, sealer *Sealer, logger *logrus.Logger) *Resolver {
	return &Resolver{store: store, sealer: sealer, logger: logger}
}

// Resolve loads the configuration and validates it in a fixed order:
// configured, active, credential, model. modelOverride takes precedence over
// the configured default model.
func (r *Resolver) Resolve(ctx context.Context, modelOverride string) (*Credentials, error) {
	cfg, err := r.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}

	name := strings.TrimSpace(cfg.Provider)
	if name == "" {
		return nil, ErrNotConfigured
	}
	if !cfg.IsActive {
		return nil, ErrInactive
	}

	if len(cfg.APIKeySealed) == 0 {
		return nil, ErrMissingCredential
	}
	apiKey, err := r.sealer.Open(cfg.APIKeySealed)
	if err != nil {
		r.logger.WithError(err).Error("failed to open sealed API key")
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	baseURL := strings.TrimSpace(cfg.APIBaseURL)
	if baseURL == "" {
		// Narrow legacy fallback: only the literal "OpenAI" provider gets a
		// hardcoded default base URL.
		if name == "OpenAI" {
			baseURL = openAIDefaultBaseURL
		} else {
			return nil, ErrMissingBaseURL
		}
	}

	model := strings.TrimSpace(modelOverride)
	if model == "" {
		model = strings.TrimSpace(cfg.DefaultModel)
	}
	if model == "" {
		return nil, ErrMissingModel
	}

	temperature := defaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	maxTokens := defaultMaxTokens
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	return &Credentials{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Provider:    name,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// KeyStatus reports whether an API key is configured without exposing it.
func (r *Resolver) KeyStatus(ctx context.Context) KeyStatus {
	cfg, err := r.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return KeyStatusNotSet
		}
		return KeyStatusError
	}
	if len(cfg.APIKeySealed) == 0 {
		return KeyStatusNotSet
	}
	key, err := r.sealer.Open(cfg.APIKeySealed)
	if err != nil {
		return KeyStatusError
	}
	if strings.TrimSpace(key) == "" {
		return KeyStatusNotSet
	}
	return KeyStatusSet
}
