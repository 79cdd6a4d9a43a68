package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// SharesHandler handles note sharing requests
type SharesHandler struct {
	db database.Database
}

// NewSharesHandler creates a new shares handler
func NewSharesHandler(db database.Database) *SharesHandler {
	return &SharesHandler{db: db}
}

// Share is the wire representation of a share grant.
type Share struct {
	ID         uuid.UUID `json:"id"`
	NoteID     uuid.UUID `json:"note_id"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
	User       UserRef   `json:"user"`
}

// CreateShareRequest grants a recipient access by email.
type CreateShareRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// resolveNote maps the note_id route param to a note the caller can see,
// returning the owner id so owner-only actions can be gated.
func (h *SharesHandler) resolveNote(c *fiber.Ctx, userID uuid.UUID) (noteID, ownerID uuid.UUID, err error) {
	noteID, perr := parseUUIDParam(c, "note_id")
	if perr != nil {
		return uuid.Nil, uuid.Nil, ErrNotFound("Note not found")
	}
	row := h.db.QueryRow(context.Background(), `
		SELECT n.user_id FROM notes n
		WHERE n.id = $1 AND (n.user_id = $2 OR EXISTS (
			SELECT 1 FROM shares s WHERE s.note_id = n.id AND s.user_id = $2
		))`, noteID, userID)
	if err := row.Scan(&ownerID); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, uuid.Nil, ErrNotFound("Note not found")
		}
		return uuid.Nil, uuid.Nil, err
	}
	return noteID, ownerID, nil
}

// ListShares returns the grants on a note with recipient details.
func (h *SharesHandler) ListShares(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, _, err := h.resolveNote(c, userID)
	if err != nil {
		return h.fail(c, "ListShares", err)
	}
	ctx := context.Background()

	rows, err := h.db.Query(ctx, `
		SELECT s.id, s.note_id, s.permission, s.created_at, u.id, u.name, u.email
		FROM shares s JOIN users u ON u.id = s.user_id
		WHERE s.note_id = $1
		ORDER BY s.created_at`, noteID)
	if err != nil {
		return h.fail(c, "ListShares", err)
	}
	defer rows.Close()

	shares := []Share{}
	for rows.Next() {
		var s Share
		if err := rows.Scan(&s.ID, &s.NoteID, &s.Permission, &s.CreatedAt,
			&s.User.ID, &s.User.Name, &s.User.Email); err != nil {
			return h.fail(c, "ListShares", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "ListShares", err)
	}

	return c.JSON(fiber.Map{"shares": shares})
}

// CreateShare grants a user access to a note. Owner only; a note cannot
// be shared with its owner, and a recipient can hold at most one grant
// per note.
func (h *SharesHandler) CreateShare(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	var req CreateShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	noteID, ownerID, err := h.resolveNote(c, userID)
	if err != nil {
		return h.fail(c, "CreateShare", err)
	}
	if ownerID != userID {
		return Respond(c, ErrPermissionDenied("Only the owner can share this note"))
	}

	ctx := context.Background()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var recipientID uuid.UUID
	err = h.db.QueryRow(ctx, `
		SELECT id FROM users WHERE LOWER(email) = $1`, email).Scan(&recipientID)
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("User not found"))
	}
	if err != nil {
		return h.fail(c, "CreateShare", err)
	}

	if recipientID == ownerID {
		return Respond(c, ErrValidation("Validation failed", "cannot share a note with its owner"))
	}

	var share Share
	share.NoteID = noteID
	err = h.db.QueryRow(ctx, `
		INSERT INTO shares (note_id, user_id, permission)
		VALUES ($1, $2, $3)
		RETURNING id, permission, created_at`,
		noteID, recipientID, PermissionReadWrite).Scan(&share.ID, &share.Permission, &share.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return Respond(c, ErrValidation("Validation failed", "user already has access to this note"))
		}
		return h.fail(c, "CreateShare", err)
	}

	if err := h.db.QueryRow(ctx, `
		SELECT id, name, email FROM users WHERE id = $1`,
		recipientID).Scan(&share.User.ID, &share.User.Name, &share.User.Email); err != nil {
		return h.fail(c, "CreateShare", err)
	}

	metrics.IncrementShareOperation("create")
	return c.Status(201).JSON(share)
}

// DeleteShare revokes a grant. Owner only.
func (h *SharesHandler) DeleteShare(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, ownerID, err := h.resolveNote(c, userID)
	if err != nil {
		return h.fail(c, "DeleteShare", err)
	}
	if ownerID != userID {
		return Respond(c, ErrPermissionDenied("Only the owner can manage sharing"))
	}
	shareID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Share not found"))
	}

	tag, err := h.db.Exec(context.Background(), `
		DELETE FROM shares WHERE id = $1 AND note_id = $2`, shareID, noteID)
	if err != nil {
		return h.fail(c, "DeleteShare", err)
	}
	if tag.RowsAffected() == 0 {
		return Respond(c, ErrNotFound("Share not found"))
	}

	metrics.IncrementShareOperation("revoke")
	return c.JSON(fiber.Map{"message": "Share revoked"})
}

func (h *SharesHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "shares")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
