package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists the single ai_provider row. The table holds exactly
// one record keyed by id=1.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context) (*Config, error) {
	query := `
		SELECT provider, default_model, api_base_url, api_key_sealed, is_active,
		       temperature, max_tokens,
		       enable_tracing, tracing_public_key, tracing_secret_sealed, tracing_host,
		       updated_at
		FROM ai_provider
		WHERE id = 1
	`

	var c Config
	err := s.db.QueryRow(ctx, query).Scan(
		&c.Provider, &c.DefaultModel, &c.APIBaseURL, &c.APIKeySealed, &c.IsActive,
		&c.Temperature, &c.MaxTokens,
		&c.EnableTracing, &c.TracingPublicKey, &c.TracingSecretSealed, &c.TracingHost,
		&c.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) Save(ctx context.Context, cfg *Config) error {
	query := `
		INSERT INTO ai_provider (id, provider, default_model, api_base_url, api_key_sealed, is_active,
		                         temperature, max_tokens,
		                         enable_tracing, tracing_public_key, tracing_secret_sealed, tracing_host,
		                         updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			default_model = EXCLUDED.default_model,
			api_base_url = EXCLUDED.api_base_url,
			api_key_sealed = EXCLUDED.api_key_sealed,
			is_active = EXCLUDED.is_active,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			enable_tracing = EXCLUDED.enable_tracing,
			tracing_public_key = EXCLUDED.tracing_public_key,
			tracing_secret_sealed = EXCLUDED.tracing_secret_sealed,
			tracing_host = EXCLUDED.tracing_host,
			updated_at = now()
	`

	_, err := s.db.Exec(ctx, query,
		cfg.Provider, cfg.DefaultModel, cfg.APIBaseURL, cfg.APIKeySealed, cfg.IsActive,
		cfg.Temperature, cfg.MaxTokens,
		cfg.EnableTracing, cfg.TracingPublicKey, cfg.TracingSecretSealed, cfg.TracingHost,
	)
	if err != nil {
		return fmt.Errorf("failed to save provider config: %w", err)
	}

	return nil
}
