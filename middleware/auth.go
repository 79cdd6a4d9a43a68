package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Database interface for database operations
type Database interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AuthMiddleware validates the Authorization header and sets user context.
// Two credential kinds share the Bearer scheme: session JWTs, which must
// also have a live Redis session, and long-lived API tokens, which are
// looked up by digest with their stored expiry.
func AuthMiddleware(secret []byte, rdb *redis.Client, db Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization"})
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if userID, ok := validateSessionJWT(c.UserContext(), token, secret, rdb); ok {
			c.Locals("user_id", userID.String())
			return c.Next()
		}
		if userID, ok := validateAPIToken(c.UserContext(), token, db); ok {
			c.Locals("user_id", userID.String())
			return c.Next()
		}

		return c.Status(401).JSON(fiber.Map{"error": "Invalid token"})
	}
}

func validateSessionJWT(ctx context.Context, token string, secret []byte, rdb *redis.Client) (uuid.UUID, bool) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, false
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}

	// A JWT alone is not enough; logout and server-side revocation work
	// by deleting the session record.
	digest := sha256.Sum256([]byte(token))
	sessionKey := fmt.Sprintf("session:%x", digest[:])
	if err := rdb.Get(ctx, sessionKey).Err(); err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func validateAPIToken(ctx context.Context, token string, db Database) (uuid.UUID, bool) {
	digest := sha256.Sum256([]byte(token))

	var userID uuid.UUID
	var expiresAt *time.Time
	err := db.QueryRow(ctx, `
		SELECT id, token_expires_at FROM users WHERE api_token_hash = $1`,
		digest[:]).Scan(&userID, &expiresAt)
	if err != nil {
		return uuid.Nil, false
	}
	if expiresAt == nil || expiresAt.Before(time.Now()) {
		return uuid.Nil, false
	}
	return userID, true
}

// RequireAdmin gates a route group on the admin role. Runs after
// AuthMiddleware, so user_id is always present.
func RequireAdmin(db Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDStr, ok := c.Locals("user_id").(string)
		if !ok || userIDStr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}

		var role string
		if err := db.QueryRow(c.UserContext(), `
			SELECT role FROM users WHERE id = $1`, userID).Scan(&role); err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}
		if role != "admin" {
			return c.Status(403).JSON(fiber.Map{"error": "Admin access required"})
		}
		return c.Next()
	}
}
