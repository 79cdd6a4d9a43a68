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

// TagsHandler handles tag management requests
type TagsHandler struct {
	db database.Database
}

// NewTagsHandler creates a new tags handler
func NewTagsHandler(db database.Database) *TagsHandler {
	return &TagsHandler{db: db}
}

// Tag is the wire representation of a tag row. Tags are strictly
// per-user; names are unique within an owner after normalization.
type Tag struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagRequest carries the writable tag fields.
type TagRequest struct {
	Name  string  `json:"name" validate:"required"`
	Color *string `json:"color"`
}

const tagColumns = `id, user_id, name, color, created_at, updated_at`

func scanTag(row pgx.Row) (*Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// normalizeTagName folds a tag name to its canonical form. Lookup and
// uniqueness both operate on the normalized value.
func normalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateTagRequest(req *TagRequest) *RequestError {
	if verr := ValidateRequest(req); verr != nil {
		return verr
	}
	if normalizeTagName(req.Name) == "" {
		return ErrValidation("Validation failed", "name can't be blank")
	}
	if req.Color != nil && *req.Color != "" && !utils.IsValidHexColor(*req.Color) {
		return ErrValidation("Validation failed", "color must be a hex color like #336699")
	}
	return nil
}

// ListTags returns the caller's tags ordered by name.
func (h *TagsHandler) ListTags(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	rows, err := h.db.Query(context.Background(), `
		SELECT `+tagColumns+` FROM tags
		WHERE user_id = $1
		ORDER BY name`, userID)
	if err != nil {
		return h.fail(c, "ListTags", err)
	}
	defer rows.Close()

	tags := []*Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return h.fail(c, "ListTags", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "ListTags", err)
	}

	return c.JSON(fiber.Map{"tags": tags})
}

// GetTag returns a tag with the notes it is attached to. The notes list
// can include shared notes the tag's owner labeled.
func (h *TagsHandler) GetTag(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	tagID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Tag not found"))
	}
	ctx := context.Background()

	tag, err := scanTag(h.db.QueryRow(ctx, `
		SELECT `+tagColumns+` FROM tags WHERE id = $1 AND user_id = $2`,
		tagID, userID))
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Tag not found"))
	}
	if err != nil {
		return h.fail(c, "GetTag", err)
	}

	rows, err := h.db.Query(ctx, `
		SELECT `+noteColumns+` FROM notes n
		JOIN note_tags nt ON nt.note_id = n.id
		WHERE nt.tag_id = $1 AND NOT n.trashed
		ORDER BY n.pinned DESC, n.updated_at DESC`, tagID)
	if err != nil {
		return h.fail(c, "GetTag", err)
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return h.fail(c, "GetTag", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "GetTag", err)
	}

	return c.JSON(fiber.Map{"tag": tag, "notes": notes})
}

// CreateTag creates a tag owned by the caller.
func (h *TagsHandler) CreateTag(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	var req TagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := validateTagRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	tag, err := scanTag(h.db.QueryRow(context.Background(), `
		INSERT INTO tags (user_id, name, color)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING `+tagColumns,
		userID, normalizeTagName(req.Name), derefOrEmpty(req.Color)))
	if err != nil {
		if IsUniqueViolation(err, "") {
			return Respond(c, ErrValidation("Validation failed", "name has already been taken"))
		}
		return h.fail(c, "CreateTag", err)
	}

	return c.Status(201).JSON(tag)
}

// UpdateTag renames or recolors a tag.
func (h *TagsHandler) UpdateTag(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	tagID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Tag not found"))
	}
	var req TagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := validateTagRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	tag, err := scanTag(h.db.QueryRow(context.Background(), `
		UPDATE tags SET name = $1, color = NULLIF($2, '')
		WHERE id = $3 AND user_id = $4
		RETURNING `+tagColumns,
		normalizeTagName(req.Name), derefOrEmpty(req.Color), tagID, userID))
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Tag not found"))
	}
	if err != nil {
		if IsUniqueViolation(err, "") {
			return Respond(c, ErrValidation("Validation failed", "name has already been taken"))
		}
		return h.fail(c, "UpdateTag", err)
	}

	return c.JSON(tag)
}

// DeleteTag removes a tag and its note links.
func (h *TagsHandler) DeleteTag(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	tagID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Tag not found"))
	}

	tag, err := h.db.Exec(context.Background(), `
		DELETE FROM tags WHERE id = $1 AND user_id = $2`, tagID, userID)
	if err != nil {
		return h.fail(c, "DeleteTag", err)
	}
	if tag.RowsAffected() == 0 {
		return Respond(c, ErrNotFound("Tag not found"))
	}

	return c.JSON(fiber.Map{"message": "Tag deleted"})
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *TagsHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "tags")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
