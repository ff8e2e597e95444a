package tracing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/norelinorth/norelinorth-ai-assistant/internal/provider"
)

// ErrTracingDisabled means tracing is turned off in the provider config.
// ErrTracingIncomplete means it is enabled but missing keys or a host.
// Neither may ever fail an AI call; the wrapper degrades to untraced dispatch.
var (
	ErrTracingDisabled   = errors.New("tracing is not enabled")
	ErrTracingIncomplete = errors.New("tracing credentials incomplete")
)

// ClientCache is the injectable handle to the lazily-built tracing client.
// The client is constructed once per effective configuration and dropped by
// Invalidate whenever the configuration changes, so stale credentials are
// never reused. All transitions happen under one mutex.
type ClientCache struct {
	store  provider.Store
	sealer *provider.Sealer
	logger *logrus.Logger

	mu     sync.Mutex
	client *Client
}

func NewClientCache(store provider.Store, sealer *provider.Sealer, logger *logrus.Logger) *ClientCache {
	return &ClientCache{store: store, sealer: sealer, logger: logger}
}

// Get returns the cached client, constructing it from the stored
// configuration on first use. It returns ErrTracingDisabled or
// ErrTracingIncomplete when no client can exist for the current config.
func (cc *ClientCache) Get(ctx context.Context) (*Client, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.client != nil {
		return cc.client, nil
	}

	client, err := cc.build(ctx)
	if err != nil {
		return nil, err
	}
	cc.client = client
	return client, nil
}

// build must be called with the mutex held.
func (cc *ClientCache) build(ctx context.Context) (*Client, error) {
	cfg, err := cc.store.Get(ctx)
	if err != nil {
		if errors.Is(err, provider.ErrConfigNotFound) {
			return nil, ErrTracingDisabled
		}
		return nil, err
	}
	if !cfg.EnableTracing {
		return nil, ErrTracingDisabled
	}

	publicKey := strings.TrimSpace(cfg.TracingPublicKey)
	host := strings.TrimSpace(cfg.TracingHost)
	if publicKey == "" || host == "" || len(cfg.TracingSecretSealed) == 0 {
		return nil, ErrTracingIncomplete
	}

	secretKey, err := cc.sealer.Open(cfg.TracingSecretSealed)
	if err != nil {
		cc.logger.WithError(err).Error("failed to open sealed tracing secret")
		return nil, ErrTracingIncomplete
	}
	if strings.TrimSpace(secretKey) == "" {
		return nil, ErrTracingIncomplete
	}

	return NewClient(host, publicKey, secretKey, cc.logger)
}

// Peek returns the cached client without constructing one. The Flusher uses
// it so an idle service never builds a client just to flush nothing.
func (cc *ClientCache) Peek() *Client {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.client
}

// Invalidate drops the cached client. The next Get rebuilds from the current
// configuration. Must be called after every provider config write.
func (cc *ClientCache) Invalidate() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.client != nil {
		cc.client.Close()
		cc.client = nil
	}
}

// Status is the result of validating the tracing configuration.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Status     string `json:"status"` // "disabled", "incomplete", "active", "error"
	Message    string `json:"message"`
	Host       string `json:"host,omitempty"`
}

// Validate reports the tracing state for the current configuration without
// mutating the cache beyond a possible lazy construction.
func (cc *ClientCache) Validate(ctx context.Context) Status {
	cfg, err := cc.store.Get(ctx)
	if err != nil && !errors.Is(err, provider.ErrConfigNotFound) {
		return Status{Status: "error", Message: err.Error()}
	}
	if err != nil || !cfg.EnableTracing {
		return Status{Status: "disabled", Message: "tracing observability is not enabled"}
	}

	client, err := cc.Get(ctx)
	switch {
	case errors.Is(err, ErrTracingIncomplete):
		return Status{Enabled: true, Status: "incomplete", Message: "tracing credentials incomplete"}
	case err != nil:
		return Status{Enabled: true, Configured: true, Status: "error", Message: "failed to initialize tracing client"}
	default:
		return Status{
			Enabled:    true,
			Configured: true,
			Status:     "active",
			Message:    "tracing observability is active",
			Host:       client.Host(),
		}
	}
}
