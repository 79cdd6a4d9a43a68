package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"

	"inkwell/utils"
)

// RateLimitConfig holds all rate limiter instances
type RateLimitConfig struct {
	AuthLimiter             fiber.Handler
	RegisterLimiter         fiber.Handler
	SearchLimiter           fiber.Handler
	ExportLimiter           fiber.Handler
	AttachmentUploadLimiter fiber.Handler
	StandardCRUDLimiter     fiber.Handler
	LightweightLimiter      fiber.Handler
}

// userOrIPKey rates authenticated traffic per account so shared NATs do
// not starve each other; unauthenticated traffic falls back to IP.
func userOrIPKey(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
		return "user:" + userID
	}
	return "ip:" + utils.ClientIP(c)
}

// NewRateLimitConfig creates all rate limiters using Redis storage
func NewRateLimitConfig(rdb *redis.Client) *RateLimitConfig {
	storage := redisstorage.NewFromConnection(rdb)

	// Tier 1: auth endpoints, keyed by IP to blunt brute force
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 5 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.ClientIP(c)
		},
		Storage: storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many authentication attempts. Please try again later.",
			})
		},
	})

	registerLimiter := limiter.New(limiter.Config{
		Max:        5,
		Expiration: 15 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.ClientIP(c)
		},
		Storage: storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many registration attempts. Please try again later.",
			})
		},
	})

	// Tier 2: heavy operations
	searchLimiter := limiter.New(limiter.Config{
		Max:          30,
		Expiration:   time.Minute,
		KeyGenerator: userOrIPKey,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many search requests. Please try again later.",
			})
		},
	})

	exportLimiter := limiter.New(limiter.Config{
		Max:          10,
		Expiration:   5 * time.Minute,
		KeyGenerator: userOrIPKey,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many export requests. Please try again later.",
			})
		},
	})

	attachmentUploadLimiter := limiter.New(limiter.Config{
		Max:          20,
		Expiration:   time.Hour,
		KeyGenerator: userOrIPKey,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many upload requests. Please try again later.",
			})
		},
	})

	// Tier 3: regular API traffic
	standardCRUDLimiter := limiter.New(limiter.Config{
		Max:          120,
		Expiration:   time.Minute,
		KeyGenerator: userOrIPKey,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})

	lightweightLimiter := limiter.New(limiter.Config{
		Max:          240,
		Expiration:   time.Minute,
		KeyGenerator: userOrIPKey,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})

	return &RateLimitConfig{
		AuthLimiter:             authLimiter,
		RegisterLimiter:         registerLimiter,
		SearchLimiter:           searchLimiter,
		ExportLimiter:           exportLimiter,
		AttachmentUploadLimiter: attachmentUploadLimiter,
		StandardCRUDLimiter:     standardCRUDLimiter,
		LightweightLimiter:      lightweightLimiter,
	}
}
