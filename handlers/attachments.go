package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// AttachmentsHandler handles note file attachment requests
type AttachmentsHandler struct {
	db       database.Database
	maxBytes int64
}

// NewAttachmentsHandler creates a new attachments handler
func NewAttachmentsHandler(db database.Database, maxBytes int64) *AttachmentsHandler {
	return &AttachmentsHandler{db: db, maxBytes: maxBytes}
}

// Attachment metadata shape; content is only returned by Download.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	NoteID      uuid.UUID `json:"note_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// requireNote resolves the note_id param to an accessible note id.
func (h *AttachmentsHandler) requireNote(c *fiber.Ctx, userID uuid.UUID) (uuid.UUID, error) {
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

func (h *AttachmentsHandler) requireEditableNote(c *fiber.Ctx, userID uuid.UUID) (uuid.UUID, error) {
	noteID, err := h.requireNote(c, userID)
	if err != nil {
		return uuid.Nil, err
	}
	editable, err := NoteEditable(context.Background(), h.db, noteID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if !editable {
		return uuid.Nil, ErrPermissionDenied("Permission denied")
	}
	return noteID, nil
}

// ListAttachments returns attachment metadata for a note.
func (h *AttachmentsHandler) ListAttachments(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireNote(c, userID)
	if err != nil {
		return h.fail(c, "ListAttachments", err)
	}

	rows, err := h.db.Query(context.Background(), `
		SELECT id, note_id, filename, mime_type, size_bytes, created_at
		FROM attachments WHERE note_id = $1
		ORDER BY created_at`, noteID)
	if err != nil {
		return h.fail(c, "ListAttachments", err)
	}
	defer rows.Close()

	attachments := []Attachment{}
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.NoteID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return h.fail(c, "ListAttachments", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "ListAttachments", err)
	}

	return c.JSON(fiber.Map{"attachments": attachments})
}

// UploadAttachments stores the files from a multipart form against the
// note. Every file must fit under the configured size cap; one oversized
// file rejects the whole batch before anything is written.
func (h *AttachmentsHandler) UploadAttachments(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireEditableNote(c, userID)
	if err != nil {
		return h.fail(c, "UploadAttachments", err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "No files provided"})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "No files provided"})
	}

	for _, fh := range files {
		if fh.Size > h.maxBytes {
			return Respond(c, ErrValidation("Validation failed",
				fmt.Sprintf("files must be under %d MB each", h.maxBytes/(1024*1024))))
		}
	}

	ctx := context.Background()
	tx, err := h.db.Begin(ctx)
	if err != nil {
		return h.fail(c, "UploadAttachments", err)
	}
	defer tx.Rollback(ctx)

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return h.fail(c, "UploadAttachments", err)
		}
		content, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
		f.Close()
		if err != nil {
			return h.fail(c, "UploadAttachments", err)
		}
		if int64(len(content)) > h.maxBytes {
			return Respond(c, ErrValidation("Validation failed",
				fmt.Sprintf("files must be under %d MB each", h.maxBytes/(1024*1024))))
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO attachments (note_id, filename, mime_type, size_bytes, content, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			noteID, fh.Filename, contentType, len(content), content, userID); err != nil {
			return h.fail(c, "UploadAttachments", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return h.fail(c, "UploadAttachments", err)
	}

	return c.Status(201).JSON(fiber.Map{
		"message": fmt.Sprintf("%d file(s) attached", len(files)),
	})
}

// DownloadAttachment streams an attachment's content.
func (h *AttachmentsHandler) DownloadAttachment(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireNote(c, userID)
	if err != nil {
		return h.fail(c, "DownloadAttachment", err)
	}
	attachmentID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Attachment not found"))
	}

	var filename, contentType string
	var content []byte
	err = h.db.QueryRow(context.Background(), `
		SELECT filename, mime_type, content
		FROM attachments WHERE id = $1 AND note_id = $2`,
		attachmentID, noteID).Scan(&filename, &contentType, &content)
	if err == pgx.ErrNoRows {
		return Respond(c, ErrNotFound("Attachment not found"))
	}
	if err != nil {
		return h.fail(c, "DownloadAttachment", err)
	}

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(content)
}

// DeleteAttachment purges an attachment from a note.
func (h *AttachmentsHandler) DeleteAttachment(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	noteID, err := h.requireEditableNote(c, userID)
	if err != nil {
		return h.fail(c, "DeleteAttachment", err)
	}
	attachmentID, perr := parseUUIDParam(c, "id")
	if perr != nil {
		return Respond(c, ErrNotFound("Attachment not found"))
	}

	tag, err := h.db.Exec(context.Background(), `
		DELETE FROM attachments WHERE id = $1 AND note_id = $2`,
		attachmentID, noteID)
	if err != nil {
		return h.fail(c, "DeleteAttachment", err)
	}
	if tag.RowsAffected() == 0 {
		return Respond(c, ErrNotFound("Attachment not found"))
	}

	return c.JSON(fiber.Map{"message": "Attachment removed"})
}

func (h *AttachmentsHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "attachments")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
