// Package seeder bootstraps a fresh installation: the provider configuration
// singleton and an admin API key. Gated behind RUN_SEED so production starts
// never touch existing data.
package seeder

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/norelinorth/norelinorth-ai-assistant/internal/auth"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/provider"
)

const (
	SeedAPIKey    = "assistant-admin-key-12345"
	SeedAdminUser = "Administrator"
)

// SeedProviderConfig creates the singleton configuration row if it does not
// exist yet. Provider defaults to OpenAI but stays inactive until an operator
// fills in credentials.
func SeedProviderConfig(ctx context.Context, store provider.Store, logger *logrus.Logger) {
	_, err := store.Get(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, provider.ErrConfigNotFound) {
		logger.WithError(err).Warn("seeder: could not check provider config")
		return
	}

	cfg := &provider.Config{
		Provider:    "OpenAI",
		IsActive:    false,
		TracingHost: provider.DefaultTracingHost,
	}
	if err := store.Save(ctx, cfg); err != nil {
		logger.WithError(err).Warn("seeder: failed to create provider config")
		return
	}
	logger.Info("seeder: provider config created (inactive, requires configuration)")
}

// SeedAdminAPIKey creates an admin key for first login.
func SeedAdminAPIKey(ctx context.Context, store auth.Store, logger *logrus.Logger) {
	apiKey := &auth.APIKey{
		User:    SeedAdminUser,
		KeyHash: auth.HashKey(SeedAPIKey),
		Role:    auth.RoleAdmin,
		Active:  true,
	}

	if err := store.Create(ctx, apiKey); err != nil {
		logger.WithError(err).Info("seeder: admin API key may already exist, skipping")
		return
	}
	logger.WithFields(logrus.Fields{
		"key":  SeedAPIKey,
		"user": SeedAdminUser,
	}).Info("seeder: admin API key created")
}
