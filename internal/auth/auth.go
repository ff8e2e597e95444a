// Package auth authenticates API keys and answers role-based permission
// questions for the assistant's RPC surface.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	ErrKeyNotFound      = errors.New("api key not found")
	ErrPermissionDenied = errors.New("not permitted")
)

// Role is the coarse permission level attached to an API key. Admin covers
// everything a user can do plus configuration writes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type APIKey struct {
	ID        string    `json:"id"`
	User      string    `json:"user"` // caller identity recorded on sessions and traces
	KeyHash   string    `json:"key_hash"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	userKey      contextKey = "user"
	roleKey      contextKey = "role"
	requestIDKey contextKey = "request_id"
)

func NewMiddleware(store Store, cache *redis.Client, logger *logrus.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")

			redisKey := fmt.Sprintf("auth:%s", hashKey(key))

			var cached APIKey
			err := cache.Get(ctx, redisKey).Scan(&cached)
			if err == nil {
				ctx = context.WithValue(ctx, userKey, cached.User)
				ctx = context.WithValue(ctx, roleKey, cached.Role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			} else if err != redis.Nil {
				logger.WithError(err).Warn("auth cache lookup failed")
			}

			apiKey, err := store.GetByKey(ctx, key)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			// Cache the result for 5 minutes
			_ = cache.Set(ctx, redisKey, apiKey, 5*time.Minute).Err()

			ctx = context.WithValue(ctx, userKey, apiKey.User)
			ctx = context.WithValue(ctx, roleKey, apiKey.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// Require answers the permission question for the current caller. Admin
// satisfies every role.
func Require(ctx context.Context, role Role) error {
	current := GetRole(ctx)
	if current == RoleAdmin {
		return nil
	}
	if current == role {
		return nil
	}
	return ErrPermissionDenied
}

// Helpers to extract from context
func GetUser(ctx context.Context) string {
	if u, ok := ctx.Value(userKey).(string); ok {
		return u
	}
	return ""
}

func GetRole(ctx context.Context) Role {
	if r, ok := ctx.Value(roleKey).(Role); ok {
		return r
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
