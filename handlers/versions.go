package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// VersionsHandler handles note version history requests
type VersionsHandler struct {
	db database.Database
}

// NewVersionsHandler creates a new versions handler
func NewVersionsHandler(db database.Database) *VersionsHandler {
	return &VersionsHandler{db: db}
}

// NoteVersion is the wire representation of a version row. A version
// always holds the note's state from just before a body change.
type NoteVersion struct {
	ID            uuid.UUID   `json:"id"`
	NoteID        uuid.UUID   `json:"note_id"`
	Title         *string     `json:"title"`
	Body          string      `json:"body"`
	VersionNumber int         `json:"version_number"`
	Metadata      interface{} `json:"metadata"`
	CreatedAt     time.Time   `json:"created_at"`
}

const versionColumns = `id, note_id, title, body, version_number, metadata, created_at`

func scanVersion(row pgx.Row) (*NoteVersion, error) {
	var v NoteVersion
	err := row.Scan(&v.ID, &v.NoteID, &v.Title, &v.Body, &v.VersionNumber, &v.Metadata, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// requireAccessibleNote resolves the note_id route param against the
// caller's visibility, reporting 404 for anything out of reach.
func (h *VersionsHandler) requireAccessibleNote(c *fiber.Ctx, userID uuid.UUID) (uuid.UUID, error) {
	noteID, perr := parseUUIDParam(c, "note_id")
	if perr != nil {
		return uuid.Nil, ErrNotFound("Note not found")
	}
	accessible, err := NoteAccessible(context.Background(), h.db, noteID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if !accessible {
		return uuid.Nil, ErrNotFound("Note not found")
	}
	return noteID, nil
}

// ListVersions returns a note's version history, newest first.
func (h *VersionsHandler) ListVersions(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireAccessibleNote(c, userID)
	if err != nil {
		return h.fail(c, "ListVersions", err)
	}
	ctx := context.Background()

	rows, err := h.db.Query(ctx, `
		SELECT `+versionColumns+` FROM note_versions
		WHERE note_id = $1
		ORDER BY version_number DESC`, noteID)
	if err != nil {
		return h.fail(c, "ListVersions", err)
	}
	defer rows.Close()

	versions := []*NoteVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return h.fail(c, "ListVersions", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "ListVersions", err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

// GetVersion returns a single version along with a diff against the
// note's current state.
func (h *VersionsHandler) GetVersion(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireAccessibleNote(c, userID)
	if err != nil {
		return h.fail(c, "GetVersion", err)
	}
	versionID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Version not found"))
	}
	ctx := context.Background()

	version, err := scanVersion(h.db.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM note_versions
		WHERE id = $1 AND note_id = $2`, versionID, noteID))
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Version not found"))
	}
	if err != nil {
		return h.fail(c, "GetVersion", err)
	}

	var currentTitle *string
	var currentBody string
	if err := h.db.QueryRow(ctx, `
		SELECT title, body FROM notes WHERE id = $1`, noteID).Scan(&currentTitle, &currentBody); err != nil {
		return h.fail(c, "GetVersion", err)
	}

	return c.JSON(fiber.Map{
		"version": version,
		"diff_from_current": fiber.Map{
			"title": fiber.Map{"was": version.Title, "now": currentTitle},
			"body":  fiber.Map{"was": version.Body, "now": currentBody},
		},
	})
}

// RestoreVersion overwrites the note's title and body with a past
// version's state. The overwritten state is itself captured as a new
// version when the body differs, so restores never lose history.
func (h *VersionsHandler) RestoreVersion(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireAccessibleNote(c, userID)
	if err != nil {
		return h.fail(c, "RestoreVersion", err)
	}
	editable, err := NoteEditable(context.Background(), h.db, noteID, userID)
	if err != nil {
		return h.fail(c, "RestoreVersion", err)
	}
	if !editable {
		return Respond(c, ErrPermissionDenied("Permission denied"))
	}
	versionID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Version not found"))
	}
	ctx := context.Background()

	version, err := scanVersion(h.db.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM note_versions
		WHERE id = $1 AND note_id = $2`, versionID, noteID))
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Version not found"))
	}
	if err != nil {
		return h.fail(c, "RestoreVersion", err)
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return h.fail(c, "RestoreVersion", err)
	}
	defer tx.Rollback(ctx)

	var oldTitle *string
	var oldBody string
	if err := tx.QueryRow(ctx, `
		SELECT title, body FROM notes WHERE id = $1 FOR UPDATE`,
		noteID).Scan(&oldTitle, &oldBody); err != nil {
		return h.fail(c, "RestoreVersion", err)
	}

	if version.Body != oldBody {
		if err := insertVersion(ctx, tx, noteID, oldTitle, oldBody); err != nil {
			return h.fail(c, "RestoreVersion", err)
		}
		metrics.IncrementVersionCreated()
	}

	if _, err := tx.Exec(ctx, `
		UPDATE notes SET title = $1, body = $2 WHERE id = $3`,
		version.Title, version.Body, noteID); err != nil {
		return h.fail(c, "RestoreVersion", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return h.fail(c, "RestoreVersion", err)
	}

	note, err := scanNote(h.db.QueryRow(ctx, `
		SELECT `+noteColumns+` FROM notes n WHERE n.id = $1`, noteID))
	if err != nil {
		return h.fail(c, "RestoreVersion", err)
	}

	metrics.IncrementNoteOperation("restore_version")
	return c.JSON(note)
}

func (h *VersionsHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "versions")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
