package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"complaint_server/pkg/apperr"
	"complaint_server/pkg/logger"
)

// TokenBlacklist manages revoked tokens
type TokenBlacklist struct {
	redis  *redis.Client
	prefix string
}

// NewTokenBlacklist returns nil when redis is not configured.
func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	if client == nil {
		logger.Warn("Redis client not provided, token blacklist disabled")
		return nil
	}
	return &TokenBlacklist{redis: client, prefix: "token:blacklist:"}
}

// Revoke adds a token ID to the blacklist until expiry.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if b == nil {
		return nil
	}
	return b.redis.Set(ctx, b.prefix+tokenID, "1", expiry).Err()
}

// IsRevoked reports whether a token ID is blacklisted. Lookup errors fail open.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if b == nil || tokenID == "" {
		return false
	}
	n, err := b.redis.Exists(ctx, b.prefix+tokenID).Result()
	if err != nil {
		logger.Warn("[JWTAuth] blacklist lookup failed: %v", err)
		return false
	}
	return n > 0
}

// AuthConfig configures JWTAuth.
type AuthConfig struct {
	Secret    string
	Blacklist *TokenBlacklist
	// Disabled lets every request through; only for local development.
	Disabled bool
}

// JWTAuth validates HS256 bearer tokens and stores the subject in Locals("subject").
func JWTAuth(cfg AuthConfig) fiber.Handler {
	if cfg.Disabled {
		logger.Warn("[JWTAuth] authentication disabled")
		return func(c *fiber.Ctx) error {
			c.Locals("subject", "anonymous")
			return c.Next()
		}
	}

	secret := []byte(cfg.Secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return apperr.Unauthorized("missing bearer token")
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return apperr.InvalidToken("token expired")
			}
			return apperr.InvalidToken("invalid token")
		}

		if cfg.Blacklist.IsRevoked(c.Context(), claims.ID) {
			return apperr.InvalidToken("token revoked")
		}

		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}
