package handlers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// AdminHandler handles administrative requests. Every route here sits
// behind the admin role gate in the middleware.
type AdminHandler struct {
	db database.Database
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db database.Database) *AdminHandler {
	return &AdminHandler{db: db}
}

// AdminUser is the user shape exposed to administrators. TokenExpiresAt
// is null for accounts that never issued an API token.
type AdminUser struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	SessionTimeout int       `json:"session_timeout"`
	TokenExpiresAt any       `json:"token_expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// UpdateUserRequest carries the admin-writable user fields.
type UpdateUserRequest struct {
	Role           *string `json:"role" validate:"omitempty,oneof=user admin"`
	SessionTimeout *int    `json:"session_timeout" validate:"omitempty,gt=0"`
}

// Dashboard returns the user roster and aggregate counts.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	ctx := context.Background()

	var totalUsers, totalNotes int64
	if err := h.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&totalUsers); err != nil {
		return h.fail(c, "Dashboard", err)
	}
	if err := h.db.QueryRow(ctx, `SELECT COUNT(*) FROM notes`).Scan(&totalNotes); err != nil {
		return h.fail(c, "Dashboard", err)
	}

	rows, err := h.db.Query(ctx, `
		SELECT id, name, email, role, session_timeout, token_expires_at, created_at
		FROM users ORDER BY name`)
	if err != nil {
		return h.fail(c, "Dashboard", err)
	}
	defer rows.Close()

	users := []AdminUser{}
	for rows.Next() {
		var u AdminUser
		var tokenExpiry sql.NullTime
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.SessionTimeout, &tokenExpiry, &u.CreatedAt); err != nil {
			return h.fail(c, "Dashboard", err)
		}
		u.TokenExpiresAt = utils.NilIfInvalid(tokenExpiry)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "Dashboard", err)
	}

	return c.JSON(fiber.Map{
		"users":       users,
		"total_users": totalUsers,
		"total_notes": totalNotes,
	})
}

// UpdateUser changes a user's role or session timeout.
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	targetID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("User not found"))
	}
	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	var user AdminUser
	var tokenExpiry sql.NullTime
	err := h.db.QueryRow(context.Background(), `
		UPDATE users
		SET role = COALESCE($1, role),
		    session_timeout = COALESCE($2, session_timeout)
		WHERE id = $3
		RETURNING id, name, email, role, session_timeout, token_expires_at, created_at`,
		req.Role, req.SessionTimeout, targetID).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.SessionTimeout, &tokenExpiry, &user.CreatedAt)
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("User not found"))
	}
	if err != nil {
		return h.fail(c, "UpdateUser", err)
	}
	user.TokenExpiresAt = utils.NilIfInvalid(tokenExpiry)

	return c.JSON(user)
}

// DeleteUser removes a user and, by cascade, everything they own.
// Administrators cannot delete themselves.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	adminID, err := getUserID(c)
	if err != nil {
		return err
	}
	targetID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("User not found"))
	}
	if targetID == adminID {
		return Respond(c, ErrValidation("Validation failed", "you cannot delete yourself"))
	}

	tag, err := h.db.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, targetID)
	if err != nil {
		return h.fail(c, "DeleteUser", err)
	}
	if tag.RowsAffected() == 0 {
		return Respond(c, ErrNotFound("User not found"))
	}

	return c.JSON(fiber.Map{"message": "User deleted"})
}

func (h *AdminHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "admin")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
