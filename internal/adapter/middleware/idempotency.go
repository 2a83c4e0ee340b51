package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"
)

var (
	ErrIdempotencyInProgress = fiber.NewError(fiber.StatusConflict, "A request with this Idempotency-Key is still being processed.")
	ErrIdempotencyKeyReused  = fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request.")
)

// IdempotencyStore reserves keys and keeps the first successful response per key.
type IdempotencyStore interface {
	// Claim reserves key for a request with the given fingerprint. When the key
	// is already held, claimed is false and rec describes the holder.
	Claim(ctx context.Context, key, fingerprint string) (rec domain.IdempotencyRecord, claimed bool, err error)
	Complete(ctx context.Context, key, fingerprint string, status int, body []byte) error
	// Release drops a pending claim so the key can be used again.
	Release(ctx context.Context, key string) error
}

// Idempotency runs a request at most once per Idempotency-Key.
// Keys are scoped to the caller. Only 2xx responses are kept, so a rejected transfer can be retried.
func Idempotency(store IdempotencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Get Key from Header
		key := c.Get(HeaderIdempotencyKey)
		if key == "" {
			return c.Next()
		}
		if id, ok := Identity(c); ok {
			key = id.UserID.String() + ":" + key
		}
		ctx := c.UserContext()
		fingerprint := requestFingerprint(c)

		// 2. Claim the key, or answer from whoever holds it
		rec, claimed, err := store.Claim(ctx, key, fingerprint)
		if err != nil {
			logger.Error("idempotency claim failed", zap.String("key", key), zap.Error(err))
			return err
		}
		if !claimed {
			switch {
			case rec.Fingerprint != fingerprint:
				logger.Warn("idempotency key reused with a different body", zap.String("key", key))
				return ErrIdempotencyKeyReused
			case rec.Pending:
				return ErrIdempotencyInProgress
			}
			logger.Info("idempotency hit, returning cached response", zap.String("key", key))
			c.Set(HeaderIdempotencyHit, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(rec.Status).Send(rec.Body)
		}

		// 3. Run the Handler, releasing the claim unless it succeeded
		succeeded := false
		defer func() {
			if succeeded {
				return
			}
			if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
				logger.Error("failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
		}()

		if err := c.Next(); err != nil {
			return err
		}
		status := c.Response().StatusCode()
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			return nil
		}
		succeeded = true

		// 4. Save the Result. On failure the claim stays pending so a retry cannot run twice.
		body := append([]byte(nil), c.Response().Body()...)
		if err := store.Complete(context.WithoutCancel(ctx), key, fingerprint, status, body); err != nil {
			logger.Error("failed to save idempotency key", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

func requestFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{' '})
	h.Write([]byte(c.Path()))
	h.Write([]byte{'\n'})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}
