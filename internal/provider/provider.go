// Package provider holds the AI provider configuration record and the
// credential resolver that turns it into usable call credentials.
package provider

import (
	"context"
	"errors"
	"time"
)

var ErrConfigNotFound = errors.New("ai provider configuration not found")

// DefaultTracingHost is used when tracing is enabled without an explicit host.
const DefaultTracingHost = "https://cloud.langfuse.com"

// Config is the singleton AI provider configuration. Secrets are stored
// sealed and only opened by the resolver, never returned from the API.
type Config struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"default_model"`
	APIBaseURL   string `json:"api_base_url"`
	APIKeySealed []byte `json:"-"`
	IsActive     bool   `json:"is_active"`

	// Generation overrides. Nil means use the service defaults; an explicit
	// zero is honored, so temperature 0 stays deterministic.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	EnableTracing       bool   `json:"enable_tracing"`
	TracingPublicKey    string `json:"tracing_public_key"`
	TracingSecretSealed []byte `json:"-"`
	TracingHost         string `json:"tracing_host"`

	UpdatedAt time.Time `json:"updated_at"`
}

// KeyStatus is the tri-state surfaced instead of the raw API key.
type KeyStatus string

const (
	KeyStatusSet    KeyStatus = "SET"
	KeyStatusNotSet KeyStatus = "NOT_SET"
	KeyStatusError  KeyStatus = "ERROR"
)

type Store interface {
	Get(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}
