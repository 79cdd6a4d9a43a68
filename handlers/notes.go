package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// NotesHandler handles note lifecycle requests
type NotesHandler struct {
	db database.Database
}

// NewNotesHandler creates a new notes handler
func NewNotesHandler(db database.Database) *NotesHandler {
	return &NotesHandler{db: db}
}

// DefaultMaxNoteSize caps a note body when the owner has not set a
// per-note limit.
const DefaultMaxNoteSize = 32768

// Note is the wire representation of a note row.
type Note struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     *string    `json:"title"`
	Body      string     `json:"body"`
	Pinned    bool       `json:"pinned"`
	Archived  bool       `json:"archived"`
	Trashed   bool       `json:"trashed"`
	TrashedAt *time.Time `json:"trashed_at"`
	MaxSize   int        `json:"max_size"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Tags      []TagRef   `json:"tags"`
}

// TagRef is the embedded tag shape inside note responses.
type TagRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color *string   `json:"color"`
}

// UserRef is the embedded user shape for share listings.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

const noteColumns = `n.id, n.user_id, n.title, n.body, n.pinned, n.archived, n.trashed, n.trashed_at, n.max_size, n.created_at, n.updated_at`

const noteColumnsBare = `id, user_id, title, body, pinned, archived, trashed, trashed_at, max_size, created_at, updated_at`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Pinned, &n.Archived,
		&n.Trashed, &n.TrashedAt, &n.MaxSize, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Tags = []TagRef{}
	return &n, nil
}

// CreateNoteRequest carries the writable note fields. Pointer fields
// distinguish absent from zero-valued input.
type CreateNoteRequest struct {
	Title   *string     `json:"title"`
	Body    string      `json:"body"`
	Pinned  bool        `json:"pinned"`
	MaxSize *int        `json:"max_size"`
	TagIDs  []uuid.UUID `json:"tag_ids"`
}

// UpdateNoteRequest mirrors CreateNoteRequest but every field is
// optional; absent fields keep their current value.
type UpdateNoteRequest struct {
	Title   *string      `json:"title"`
	Body    *string      `json:"body"`
	Pinned  *bool        `json:"pinned"`
	MaxSize *int         `json:"max_size"`
	TagIDs  *[]uuid.UUID `json:"tag_ids"`
}

// MergeRequest names the note to fold into the target.
type MergeRequest struct {
	MergeWithID uuid.UUID `json:"merge_with_id" validate:"required"`
}

// validateBody checks the body length invariant against the note's own
// size cap.
func validateBody(body string, maxSize int) *RequestError {
	if maxSize <= 0 {
		return ErrValidation("Validation failed", "max_size must be greater than 0")
	}
	if len(body) > maxSize {
		return ErrValidation("Validation failed",
			fmt.Sprintf("body is too long (maximum is %d characters)", maxSize))
	}
	return nil
}

// loadNote fetches a note visible to the user, or reports not-found.
// Inaccessible and nonexistent notes are indistinguishable here.
func (h *NotesHandler) loadNote(ctx context.Context, noteID, userID uuid.UUID) (*Note, error) {
	row := h.db.QueryRow(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE n.id = $1 AND `+fmt.Sprintf(accessibleCond, 2), noteID, userID)
	note, err := scanNote(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound("Note not found")
	}
	if err != nil {
		return nil, err
	}
	return note, nil
}

// requireEditable enforces the write gate: 404 if the note is invisible,
// 403 if visible but the share does not permit writes.
func (h *NotesHandler) requireEditable(ctx context.Context, noteID, userID uuid.UUID) error {
	accessible, err := NoteAccessible(ctx, h.db, noteID, userID)
	if err != nil {
		return err
	}
	if !accessible {
		return ErrNotFound("Note not found")
	}
	editable, err := NoteEditable(ctx, h.db, noteID, userID)
	if err != nil {
		return err
	}
	if !editable {
		return ErrPermissionDenied("Permission denied")
	}
	return nil
}

// loadNoteTags attaches tag lists to each note in a single query.
func (h *NotesHandler) loadNoteTags(ctx context.Context, notes []*Note) error {
	if len(notes) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(notes))
	byID := make(map[uuid.UUID]*Note, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
		byID[n.ID] = n
	}
	rows, err := h.db.Query(ctx, `
		SELECT nt.note_id, t.id, t.name, t.color
		FROM note_tags nt JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ANY($1)
		ORDER BY t.name`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var noteID uuid.UUID
		var tag TagRef
		if err := rows.Scan(&noteID, &tag.ID, &tag.Name, &tag.Color); err != nil {
			return err
		}
		if n, ok := byID[noteID]; ok {
			n.Tags = append(n.Tags, tag)
		}
	}
	return rows.Err()
}

// applyTags replaces the note's tag set with the requested ids
// intersected with the actor's own tags. Foreign tag ids are dropped
// silently rather than rejected.
func (h *NotesHandler) applyTags(ctx context.Context, noteID, userID uuid.UUID, tagIDs []uuid.UUID) error {
	tx, err := h.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM note_tags WHERE note_id = $1`, noteID); err != nil {
		return err
	}
	if len(tagIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO note_tags (note_id, tag_id)
			SELECT $1, t.id FROM tags t
			WHERE t.id = ANY($2) AND t.user_id = $3
			ON CONFLICT DO NOTHING`, noteID, tagIDs, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func paginationParams(c *fiber.Ctx) (page, limit, offset int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit = c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

func paginationMeta(page, limit int, count int64) fiber.Map {
	pages := (count + int64(limit) - 1) / int64(limit)
	if pages < 1 {
		pages = 1
	}
	return fiber.Map{"page": page, "limit": limit, "pages": pages, "count": count}
}

// ListNotes returns the notes visible to the caller. The filter param
// selects a lifecycle slice; the default excludes trashed and archived.
func (h *NotesHandler) ListNotes(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	where := fmt.Sprintf(accessibleCond, 1)
	switch c.Query("filter") {
	case "pinned":
		where += " AND n.pinned AND NOT n.trashed"
	case "archived":
		where += " AND n.archived AND NOT n.trashed"
	case "trash":
		where += " AND n.trashed"
	default:
		where += " AND NOT n.trashed AND NOT n.archived"
	}

	direction := "DESC"
	if c.Query("direction") == "asc" {
		direction = "ASC"
	}
	var orderBy string
	switch c.Query("sort") {
	case "created_at":
		orderBy = "n.created_at " + direction
	case "title":
		orderBy = "n.title " + direction + " NULLS LAST"
	default:
		orderBy = "n.pinned DESC, n.updated_at DESC"
	}

	page, limit, offset := paginationParams(c)

	var count int64
	if err := h.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notes n WHERE `+where, userID).Scan(&count); err != nil {
		utils.LogRequestError(c, "ListNotes: count failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list notes"})
	}

	rows, err := h.db.Query(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE `+where+`
		ORDER BY `+orderBy+`
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		utils.LogRequestError(c, "ListNotes: query failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list notes"})
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			utils.LogRequestError(c, "ListNotes: scan failed", err)
			return c.Status(500).JSON(fiber.Map{"error": "Failed to list notes"})
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		utils.LogRequestError(c, "ListNotes: rows failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list notes"})
	}

	if err := h.loadNoteTags(ctx, notes); err != nil {
		utils.LogRequestError(c, "ListNotes: tags failed", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list notes"})
	}

	return c.JSON(fiber.Map{
		"notes":      notes,
		"pagination": paginationMeta(page, limit, count),
	})
}

// GetNote returns a single note with its tags and share recipients.
func (h *NotesHandler) GetNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	ctx := context.Background()

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "GetNote", err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, "GetNote", err)
	}

	sharedUsers, err := h.loadSharedUsers(ctx, noteID)
	if err != nil {
		return h.fail(c, "GetNote", err)
	}

	return c.JSON(fiber.Map{
		"note":         note,
		"shared_users": sharedUsers,
	})
}

func (h *NotesHandler) loadSharedUsers(ctx context.Context, noteID uuid.UUID) ([]UserRef, error) {
	rows, err := h.db.Query(ctx, `
		SELECT u.id, u.name, u.email
		FROM shares s JOIN users u ON u.id = s.user_id
		WHERE s.note_id = $1
		ORDER BY u.name`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []UserRef{}
	for rows.Next() {
		var u UserRef
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateNote creates a note owned by the caller. Creation never records a
// version; version one appears on the first body-changing update.
func (h *NotesHandler) CreateNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	var req CreateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	maxSize := DefaultMaxNoteSize
	if req.MaxSize != nil {
		maxSize = *req.MaxSize
	}
	if verr := validateBody(req.Body, maxSize); verr != nil {
		return Respond(c, verr)
	}

	ctx := context.Background()
	row := h.db.QueryRow(ctx, `
		INSERT INTO notes (user_id, title, body, pinned, max_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+noteColumnsBare,
		userID, req.Title, req.Body, req.Pinned, maxSize)
	note, err := scanNote(row)
	if err != nil {
		return h.fail(c, "CreateNote", err)
	}

	if len(req.TagIDs) > 0 {
		if err := h.applyTags(ctx, note.ID, userID, req.TagIDs); err != nil {
			return h.fail(c, "CreateNote", err)
		}
		if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
			return h.fail(c, "CreateNote", err)
		}
	}

	metrics.IncrementNoteOperation("create")
	return c.Status(201).JSON(note)
}

// UpdateNote applies a partial update. When the body changes, the
// pre-update title and body are captured as a new version inside the same
// transaction, so a version row and its note row can never diverge.
func (h *NotesHandler) UpdateNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	var req UpdateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	ctx := context.Background()
	if err := h.requireEditable(ctx, noteID, userID); err != nil {
		return h.fail(c, "UpdateNote", err)
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return h.fail(c, "UpdateNote", err)
	}
	defer tx.Rollback(ctx)

	var oldTitle *string
	var oldBody string
	var oldPinned bool
	var maxSize int
	err = tx.QueryRow(ctx, `
		SELECT title, body, pinned, max_size FROM notes WHERE id = $1 FOR UPDATE`,
		noteID).Scan(&oldTitle, &oldBody, &oldPinned, &maxSize)
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Note not found"))
	}
	if err != nil {
		return h.fail(c, "UpdateNote", err)
	}

	newTitle := oldTitle
	if req.Title != nil {
		newTitle = req.Title
	}
	newBody := oldBody
	if req.Body != nil {
		newBody = *req.Body
	}
	newPinned := oldPinned
	if req.Pinned != nil {
		newPinned = *req.Pinned
	}
	if req.MaxSize != nil {
		maxSize = *req.MaxSize
	}
	if verr := validateBody(newBody, maxSize); verr != nil {
		return Respond(c, verr)
	}

	if newBody != oldBody {
		if err := insertVersion(ctx, tx, noteID, oldTitle, oldBody); err != nil {
			return h.fail(c, "UpdateNote", err)
		}
		metrics.IncrementVersionCreated()
	}

	if _, err := tx.Exec(ctx, `
		UPDATE notes SET title = $1, body = $2, pinned = $3, max_size = $4
		WHERE id = $5`,
		newTitle, newBody, newPinned, maxSize, noteID); err != nil {
		return h.fail(c, "UpdateNote", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return h.fail(c, "UpdateNote", err)
	}

	if req.TagIDs != nil {
		if err := h.applyTags(ctx, noteID, userID, *req.TagIDs); err != nil {
			return h.fail(c, "UpdateNote", err)
		}
	}

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "UpdateNote", err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, "UpdateNote", err)
	}

	metrics.IncrementNoteOperation("update")
	return c.JSON(note)
}

// insertVersion records the pre-change state of a note. Version numbers
// are dense per note, starting at one; the MAX+1 read races nothing
// because the caller holds the note row lock.
func insertVersion(ctx context.Context, tx pgx.Tx, noteID uuid.UUID, title *string, body string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO note_versions (note_id, title, body, version_number, metadata)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(version_number), 0) + 1 FROM note_versions WHERE note_id = $1),
			jsonb_build_object('changed_at', now()))`,
		noteID, title, body)
	return err
}

// DeleteNote is two-stage: an active note goes to the trash, a trashed
// note is destroyed permanently along with its versions, shares, tags
// links, and attachments. Owner only.
func (h *NotesHandler) DeleteNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	ctx := context.Background()

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "DeleteNote", err)
	}
	if note.UserID != userID {
		return Respond(c, ErrPermissionDenied("Only the owner can delete this note"))
	}

	if note.Trashed {
		if _, err := h.db.Exec(ctx, `DELETE FROM notes WHERE id = $1`, noteID); err != nil {
			return h.fail(c, "DeleteNote", err)
		}
		metrics.IncrementNoteOperation("destroy")
		return c.JSON(fiber.Map{"message": "Note permanently deleted"})
	}

	if _, err := h.db.Exec(ctx, `
		UPDATE notes SET trashed = TRUE, trashed_at = now(), pinned = FALSE
		WHERE id = $1`, noteID); err != nil {
		return h.fail(c, "DeleteNote", err)
	}
	metrics.IncrementNoteOperation("trash")
	return c.JSON(fiber.Map{"message": "Note moved to trash"})
}

// ListTrash returns the caller's own trashed notes, newest change first.
func (h *NotesHandler) ListTrash(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	ctx := context.Background()
	page, limit, offset := paginationParams(c)

	var count int64
	if err := h.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notes n WHERE n.user_id = $1 AND n.trashed`,
		userID).Scan(&count); err != nil {
		return h.fail(c, "ListTrash", err)
	}

	rows, err := h.db.Query(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE n.user_id = $1 AND n.trashed
		ORDER BY n.pinned DESC, n.updated_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return h.fail(c, "ListTrash", err)
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return h.fail(c, "ListTrash", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "ListTrash", err)
	}
	if err := h.loadNoteTags(ctx, notes); err != nil {
		return h.fail(c, "ListTrash", err)
	}

	return c.JSON(fiber.Map{
		"notes":      notes,
		"pagination": paginationMeta(page, limit, count),
	})
}

// transition applies a flag change to an editable note. cond narrows the
// UPDATE to notes in the expected starting state; a guarded transition
// that matches no row is reported as not found.
func (h *NotesHandler) transition(c *fiber.Ctx, op, setClause, cond string) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	ctx := context.Background()

	if err := h.requireEditable(ctx, noteID, userID); err != nil {
		return h.fail(c, op, err)
	}
	tag, err := h.db.Exec(ctx, `UPDATE notes SET `+setClause+` WHERE id = $1`+cond, noteID)
	if err != nil {
		return h.fail(c, op, err)
	}
	if tag.RowsAffected() == 0 {
		return Respond(c, ErrNotFound("Note not found"))
	}

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, op, err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, op, err)
	}
	metrics.IncrementNoteOperation(op)
	return c.JSON(note)
}

// RestoreNote brings a note back from the trash. Restoring a note that
// is not trashed is not found, not a silent no-op.
func (h *NotesHandler) RestoreNote(c *fiber.Ctx) error {
	return h.transition(c, "restore", "trashed = FALSE, trashed_at = NULL", " AND trashed")
}

// ArchiveNote archives a note. Archiving always unpins.
func (h *NotesHandler) ArchiveNote(c *fiber.Ctx) error {
	return h.transition(c, "archive", "archived = TRUE, pinned = FALSE", "")
}

// UnarchiveNote returns a note to the active set.
func (h *NotesHandler) UnarchiveNote(c *fiber.Ctx) error {
	return h.transition(c, "unarchive", "archived = FALSE", "")
}

// TogglePin flips the pinned flag. Trashed notes cannot be pinned.
func (h *NotesHandler) TogglePin(c *fiber.Ctx) error {
	return h.transition(c, "toggle_pin", "pinned = NOT pinned", " AND NOT trashed")
}

// DuplicateNote copies an accessible note into the caller's own notes.
// Flags reset, tag links are carried over, and a titled note gains a
// " (copy)" suffix.
func (h *NotesHandler) DuplicateNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	ctx := context.Background()

	source, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "DuplicateNote", err)
	}

	var newTitle *string
	if source.Title != nil && strings.TrimSpace(*source.Title) != "" {
		t := *source.Title + " (copy)"
		newTitle = &t
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return h.fail(c, "DuplicateNote", err)
	}
	defer tx.Rollback(ctx)

	var newID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO notes (user_id, title, body, max_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		userID, newTitle, source.Body, source.MaxSize).Scan(&newID)
	if err != nil {
		return h.fail(c, "DuplicateNote", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO note_tags (note_id, tag_id)
		SELECT $1, tag_id FROM note_tags WHERE note_id = $2
		ON CONFLICT DO NOTHING`, newID, noteID); err != nil {
		return h.fail(c, "DuplicateNote", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return h.fail(c, "DuplicateNote", err)
	}

	note, err := h.loadNote(ctx, newID, userID)
	if err != nil {
		return h.fail(c, "DuplicateNote", err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, "DuplicateNote", err)
	}

	metrics.IncrementNoteOperation("duplicate")
	return c.Status(201).JSON(note)
}

// MergeNote folds another accessible note into the target: bodies are
// joined with a separator, tags are unioned, and the source note goes to
// the trash. The body change records a version of the target's prior
// state.
func (h *NotesHandler) MergeNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	var req MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if verr := ValidateRequest(&req); verr != nil {
		return Respond(c, verr)
	}

	ctx := context.Background()
	if err := h.requireEditable(ctx, noteID, userID); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if req.MergeWithID == noteID {
		return Respond(c, ErrValidation("Validation failed", "cannot merge a note with itself"))
	}

	other, err := h.loadNote(ctx, req.MergeWithID, userID)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return Respond(c, ErrNotFound("Note to merge with not found"))
		}
		return h.fail(c, "MergeNote", err)
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return h.fail(c, "MergeNote", err)
	}
	defer tx.Rollback(ctx)

	var oldTitle *string
	var oldBody string
	err = tx.QueryRow(ctx, `
		SELECT title, body FROM notes WHERE id = $1 FOR UPDATE`,
		noteID).Scan(&oldTitle, &oldBody)
	if err != nil {
		return h.fail(c, "MergeNote", err)
	}

	merged := oldBody + "\n\n---\n\n" + other.Body
	if err := insertVersion(ctx, tx, noteID, oldTitle, oldBody); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE notes SET body = $1 WHERE id = $2`, merged, noteID); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO note_tags (note_id, tag_id)
		SELECT $1, tag_id FROM note_tags WHERE note_id = $2
		ON CONFLICT DO NOTHING`, noteID, req.MergeWithID); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE notes SET trashed = TRUE, trashed_at = now(), pinned = FALSE
		WHERE id = $1`, req.MergeWithID); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return h.fail(c, "MergeNote", err)
	}
	metrics.IncrementVersionCreated()

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "MergeNote", err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, "MergeNote", err)
	}

	metrics.IncrementNoteOperation("merge")
	return c.JSON(note)
}

// SetNoteTagsRequest replaces a note's tag set wholesale.
type SetNoteTagsRequest struct {
	TagIDs []uuid.UUID `json:"tag_ids"`
}

// SetNoteTags replaces the note's tags with the given set, silently
// keeping only ids that name tags the caller owns. An empty set clears
// all of the caller's labels from the note.
func (h *NotesHandler) SetNoteTags(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	var req SetNoteTagsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	ctx := context.Background()
	if err := h.requireEditable(ctx, noteID, userID); err != nil {
		return h.fail(c, "SetNoteTags", err)
	}
	if err := h.applyTags(ctx, noteID, userID, req.TagIDs); err != nil {
		return h.fail(c, "SetNoteTags", err)
	}

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "SetNoteTags", err)
	}
	if err := h.loadNoteTags(ctx, []*Note{note}); err != nil {
		return h.fail(c, "SetNoteTags", err)
	}
	return c.JSON(note)
}

// noteMarkdown renders a note as a markdown document.
func noteMarkdown(title *string, body string) string {
	if title != nil && strings.TrimSpace(*title) != "" {
		return "# " + *title + "\n\n" + body
	}
	return body
}

// ExportNote returns a single note as a markdown file payload.
func (h *NotesHandler) ExportNote(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, perr)
	}
	ctx := context.Background()

	note, err := h.loadNote(ctx, noteID, userID)
	if err != nil {
		return h.fail(c, "ExportNote", err)
	}

	title := ""
	if note.Title != nil {
		title = *note.Title
	}
	return c.JSON(fiber.Map{
		"filename": utils.SafeFilename(title, "untitled") + ".md",
		"content":  noteMarkdown(note.Title, note.Body),
	})
}

// BulkExport returns the caller's own non-trashed notes as markdown file
// payloads, optionally restricted to the ids in the note_ids query param.
func (h *NotesHandler) BulkExport(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	query := `
		SELECT ` + noteColumns + ` FROM notes n
		WHERE n.user_id = $1 AND NOT n.trashed`
	args := []interface{}{userID}

	if raw := c.Query("note_ids"); raw != "" {
		ids := []uuid.UUID{}
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				return Respond(c, ErrValidation("Validation failed", "note_ids must be a comma-separated list of UUIDs"))
			}
			ids = append(ids, id)
		}
		query += ` AND n.id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY n.pinned DESC, n.updated_at DESC`

	rows, err := h.db.Query(ctx, query, args...)
	if err != nil {
		return h.fail(c, "BulkExport", err)
	}
	defer rows.Close()

	files := []fiber.Map{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return h.fail(c, "BulkExport", err)
		}
		title := ""
		if note.Title != nil {
			title = *note.Title
		}
		files = append(files, fiber.Map{
			"filename": utils.SafeFilename(title, "note-"+note.ID.String()) + ".md",
			"content":  noteMarkdown(note.Title, note.Body),
		})
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "BulkExport", err)
	}

	return c.JSON(fiber.Map{"files": files})
}

// fail routes an error: RequestErrors become their mapped response,
// everything else is logged and hidden behind a 500.
func (h *NotesHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "notes")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
