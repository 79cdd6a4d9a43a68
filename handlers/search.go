package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"inkwell/database"
	"inkwell/metrics"
	"inkwell/utils"
)

// SearchHandler handles full-text search requests
type SearchHandler struct {
	db database.Database
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(db database.Database) *SearchHandler {
	return &SearchHandler{db: db}
}

// SearchNotes runs a stemmed, case-insensitive full-text query over the
// caller's accessible, non-trashed notes, ranked by relevance. A blank
// query short-circuits to an empty result set rather than matching
// everything.
func (h *SearchHandler) SearchNotes(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.Query("q"))
	page, limit, offset := paginationParams(c)
	if query == "" {
		return c.JSON(fiber.Map{
			"notes":      []*Note{},
			"pagination": paginationMeta(page, limit, 0),
		})
	}

	ctx := context.Background()
	where := fmt.Sprintf(accessibleCond, 1) +
		` AND NOT n.trashed AND n.search_vector @@ websearch_to_tsquery('english', $2)`

	var count int64
	if err := h.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notes n WHERE `+where, userID, query).Scan(&count); err != nil {
		return h.fail(c, "SearchNotes", err)
	}

	rows, err := h.db.Query(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE `+where+`
		ORDER BY ts_rank(n.search_vector, websearch_to_tsquery('english', $2)) DESC, n.updated_at DESC
		LIMIT $3 OFFSET $4`, userID, query, limit, offset)
	if err != nil {
		return h.fail(c, "SearchNotes", err)
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return h.fail(c, "SearchNotes", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return h.fail(c, "SearchNotes", err)
	}

	notesHandler := &NotesHandler{db: h.db}
	if err := notesHandler.loadNoteTags(ctx, notes); err != nil {
		return h.fail(c, "SearchNotes", err)
	}

	metrics.IncrementSearchQuery()
	return c.JSON(fiber.Map{
		"notes":      notes,
		"pagination": paginationMeta(page, limit, count),
	})
}

func (h *SearchHandler) fail(c *fiber.Ctx, op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return Respond(c, reqErr)
	}
	metrics.IncrementError("internal", "search")
	utils.LogRequestError(c, op+" failed", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
