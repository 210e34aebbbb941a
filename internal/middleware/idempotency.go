package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "economy:idem:"
	replayHeader         = "Idempotent-Replay"
	maxIdempotencyKeyLen = 128
	cacheTimeout         = 2 * time.Second
)

// idemRecord is what a key holds in Redis. A record without a status is a
// reservation whose request is still running.
type idemRecord struct {
	Fingerprint string `json:"fp"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func fingerprint(c *fiber.Ctx) string {
	sum := sha256.Sum256(c.Body())
	return hex.EncodeToString(sum[:])
}

// Idempotency replays the stored response of an unsafe request that repeats
// an Idempotency-Key. Keys are scoped to the calling character and route, and
// bound to the request body: reusing a key with a different body is
// rejected. Failed requests release their key so the player can retry once
// the cause is fixed. Without Redis every request passes straight through.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		cacheKey := idempotencyPrefix + CharacterID(c) + ":" + c.Method() + ":" + c.Path() + ":" + key
		fp := fingerprint(c)
		log := logger.With(slog.String("idempotency_key", key), slog.String("character_id", CharacterID(c)))

		reserved, err := reserve(cache, cacheKey, fp, ttl)
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return replay(c, cache, cacheKey, fp, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}

		payload, err := json.Marshal(idemRecord{
			Fingerprint: fp,
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        c.Response().Body(),
		})
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
			defer cancel()
			err = cache.Set(ctx, cacheKey, payload, ttl).Err()
		}
		if err != nil {
			// The operation already committed; a lost record only means a
			// retry runs again and meets the economy's own state checks.
			log.Warn("idempotent response not stored", slog.Any("error", err))
			release(cache, cacheKey)
		}
		return nil
	}
}

func reserve(cache *redis.Client, cacheKey, fp string, ttl time.Duration) (bool, error) {
	marker, err := json.Marshal(idemRecord{Fingerprint: fp})
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	return cache.SetNX(ctx, cacheKey, marker, ttl).Result()
}

func replay(c *fiber.Ctx, cache *redis.Client, cacheKey, fp string, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	raw, err := cache.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		return fiber.NewError(fiber.StatusConflict, "duplicate request, retry")
	}
	if err != nil {
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
	}

	var rec idemRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn("unreadable idempotency record", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if rec.Fingerprint != fp {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used with a different request body")
	}
	if rec.Status == 0 {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	c.Set(replayHeader, "true")
	return c.Status(rec.Status).Send(rec.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
