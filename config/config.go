package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Secrets
	SealKey []byte // 32-byte key for sealing stored credentials, hex-encoded in env

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
	Environment          string // deployment environment tag, default: "development"

	// Rate Limiting
	DefaultRateLimitRPM int64 // AI calls per minute per caller, default: 60

	// Tracing flush
	TraceFlushSeconds int64 // background flush interval, default: 10
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		Environment:          getEnv("ENVIRONMENT", "development"),
	}

	rpmStr := getEnv("DEFAULT_RATE_LIMIT_RPM", "60")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_RPM: %w", err)
	}
	cfg.DefaultRateLimitRPM = rpm

	flushStr := getEnv("TRACE_FLUSH_SECONDS", "10")
	flush, err := strconv.ParseInt(flushStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TRACE_FLUSH_SECONDS: %w", err)
	}
	cfg.TraceFlushSeconds = flush

	sealHex := os.Getenv("SEAL_KEY")
	if sealHex == "" {
		return nil, fmt.Errorf("SEAL_KEY is required")
	}
	key, err := hex.DecodeString(sealHex)
	if err != nil {
		return nil, fmt.Errorf("invalid SEAL_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SEAL_KEY must be 32 hex-encoded bytes, got %d", len(key))
	}
	cfg.SealKey = key

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
