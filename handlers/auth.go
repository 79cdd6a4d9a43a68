package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inkwell/config"
	"inkwell/crypto"
	"inkwell/database"
	"inkwell/utils"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db     database.Database
	redis  *redis.Client
	config *config.Config
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(db database.Database, redis *redis.Client, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, redis: redis, config: cfg}
}

// SessionData structure for Redis storage
type SessionData struct {
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRequest represents a user registration request. A federated
// (provider, uid) pair may stand in for a password; every account must
// carry at least one of the two authentication methods.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=4"`
	Provider string `json:"provider,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenRequest asks for an API bearer token, either by password or by a
// federated identity pair.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// validateAuthMethod enforces the identity invariant: an account needs a
// password or a complete federated pair. Checked on every mutation of the
// credential fields, not just at creation.
func validateAuthMethod(passwordHash, provider, uid string) *RequestError {
	hasPassword := passwordHash != ""
	hasFederated := provider != "" && uid != ""
	if !hasPassword && !hasFederated {
		return ErrValidation("Validation failed", "account must have either a password or federated credentials")
	}
	return nil
}

// Register godoc
// @Summary Register a new user account
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var passwordHash string
	if req.Password != "" {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			utils.LogRequestError(c, "Register: salt generation failed", err)
			return c.Status(500).JSON(fiber.Map{"error": "Registration failed"})
		}
		passwordHash = crypto.HashPassword(req.Password, salt)
	}

	if verr := validateAuthMethod(passwordHash, req.Provider, req.UID); verr != nil {
		return Respond(c, verr)
	}

	ctx := context.Background()
	var userID uuid.UUID
	err := h.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, provider, uid)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id`,
		req.Name, email, passwordHash, req.Provider, req.UID).Scan(&userID)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return Respond(c, ErrValidation("Validation failed", "email has already been taken"))
		}
		utils.LogRequestError(c, "Register: insert failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Registration failed"})
	}

	return c.Status(201).JSON(fiber.Map{
		"id":    userID,
		"email": email,
	})
}

// Login authenticates by email and password, issuing a session JWT backed
// by a Redis session record.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	ctx := context.Background()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var userID uuid.UUID
	var passwordHash sql.NullString
	var sessionTimeout int
	err := h.db.QueryRow(ctx, `
		SELECT id, password_hash, session_timeout FROM users WHERE LOWER(email) = $1`,
		email).Scan(&userID, &passwordHash, &sessionTimeout)
	if err != nil || !passwordHash.Valid || !crypto.VerifyPassword(req.Password, passwordHash.String) {
		// Identical response whether the account is missing or the
		// password is wrong
		return Respond(c, ErrUnauthorized("Invalid credentials"))
	}

	expiresAt := time.Now().Add(sessionTTL(sessionTimeout, h.config.SessionDuration))
	token, err := h.generateSessionToken(userID, expiresAt)
	if err != nil {
		utils.LogRequestError(c, "Login: token generation failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Login failed"})
	}

	if err := h.storeSession(ctx, token, userID, utils.ClientIP(c), c.Get("User-Agent"), expiresAt); err != nil {
		utils.LogRequestError(c, "Login: session store failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Login failed"})
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// CreateToken issues a long-lived API bearer token, authenticating either
// by password or by a federated identity pair.
func (h *AuthHandler) CreateToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	ctx := context.Background()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var userID uuid.UUID
	if req.Password != "" {
		var passwordHash sql.NullString
		err := h.db.QueryRow(ctx, `
			SELECT id, password_hash FROM users WHERE LOWER(email) = $1`,
			email).Scan(&userID, &passwordHash)
		if err != nil || !passwordHash.Valid || !crypto.VerifyPassword(req.Password, passwordHash.String) {
			return Respond(c, ErrUnauthorized("Invalid credentials"))
		}
	} else if req.UID != "" {
		err := h.db.QueryRow(ctx, `
			SELECT id FROM users WHERE LOWER(email) = $1 AND uid = $2`,
			email, req.UID).Scan(&userID)
		if err != nil {
			return Respond(c, ErrUnauthorized("Invalid credentials"))
		}
	} else {
		return Respond(c, ErrUnauthorized("Invalid credentials"))
	}

	token, expiresAt, err := h.issueAPIToken(ctx, userID)
	if err != nil {
		utils.LogRequestError(c, "CreateToken: issue failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Token creation failed"})
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// RefreshToken extends a valid bearer token's expiry, or issues a fresh
// token when the presented one has already expired.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	presented := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if presented == "" {
		return Respond(c, ErrUnauthorized("Missing authorization"))
	}

	ctx := context.Background()
	tokenHash := crypto.HashToken(presented)

	var userID uuid.UUID
	var expiresAt sql.NullTime
	err := h.db.QueryRow(ctx, `
		SELECT id, token_expires_at FROM users WHERE api_token_hash = $1`,
		tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		return Respond(c, ErrUnauthorized("Invalid token"))
	}

	if !expiresAt.Valid || expiresAt.Time.Before(time.Now()) {
		utils.LogInfo("Reissuing expired API token", "user_id", userID.String(), "expired_at", utils.FormatNullTime(expiresAt))
		token, newExpiry, err := h.issueAPIToken(ctx, userID)
		if err != nil {
			utils.LogRequestError(c, "RefreshToken: reissue failed", err)
			return c.Status(500).JSON(fiber.Map{"error": "Token refresh failed"})
		}
		return c.JSON(fiber.Map{
			"token":      token,
			"expires_at": newExpiry.Format(time.RFC3339),
		})
	}

	newExpiry := time.Now().Add(h.config.APITokenTTL)
	if _, err := h.db.Exec(ctx, `
		UPDATE users SET token_expires_at = $1 WHERE id = $2`,
		newExpiry, userID); err != nil {
		utils.LogRequestError(c, "RefreshToken: extend failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Token refresh failed"})
	}

	return c.JSON(fiber.Map{
		"token":      presented,
		"expires_at": newExpiry.Format(time.RFC3339),
	})
}

// issueAPIToken stores a fresh token hash and expiry on the user row and
// returns the plaintext token.
func (h *AuthHandler) issueAPIToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, err := crypto.GenerateAPIToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().Add(h.config.APITokenTTL)
	if _, err := h.db.Exec(ctx, `
		UPDATE users SET api_token_hash = $1, token_expires_at = $2 WHERE id = $3`,
		crypto.HashToken(token), expiresAt, userID); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// sessionTTL converts a per-user timeout in seconds into a session
// lifetime, clamped to the configured maximum. Zero or negative
// timeouts fall back to the maximum.
func sessionTTL(timeoutSeconds int, max time.Duration) time.Duration {
	ttl := time.Duration(timeoutSeconds) * time.Second
	if ttl <= 0 || ttl > max {
		return max
	}
	return ttl
}

func (h *AuthHandler) generateSessionToken(userID uuid.UUID, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.config.JWTSecret)
}

// storeSession keeps session metadata in Redis keyed by the token hash so
// logout and expiry can be enforced server-side.
func (h *AuthHandler) storeSession(ctx context.Context, token string, userID uuid.UUID, ipAddr, userAgent string, expiresAt time.Time) error {
	sessionData := SessionData{
		UserID:    userID.String(),
		IPAddress: ipAddr,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	data, err := json.Marshal(sessionData)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	sessionKey := fmt.Sprintf("session:%x", crypto.HashToken(token))
	return h.redis.Set(ctx, sessionKey, data, time.Until(expiresAt)).Err()
}

// Logout removes the Redis session for the presented JWT.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	presented := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if presented == "" {
		return Respond(c, ErrUnauthorized("Missing authorization"))
	}
	sessionKey := fmt.Sprintf("session:%x", crypto.HashToken(presented))
	if err := h.redis.Del(context.Background(), sessionKey).Err(); err != nil {
		utils.LogRequestError(c, "Logout: session delete failed", err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}
