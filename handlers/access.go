package handlers

import (
	"context"

	"github.com/google/uuid"

	"inkwell/database"
)

// Share permission levels. Only read_write exists today; the enumeration
// is kept open so read-only grants can be added without an API break.
const (
	PermissionReadWrite = "read_write"
)

// accessibleCond is the SQL fragment selecting notes visible to a user:
// notes they own plus notes shared with them. The owner-cannot-share-with-
// self invariant means the two branches never overlap, and EXISTS keeps
// the result duplicate-free regardless.
const accessibleCond = `(n.user_id = $%[1]d OR EXISTS (
		SELECT 1 FROM shares s WHERE s.note_id = n.id AND s.user_id = $%[1]d))`

// NoteAccessible reports whether the user may read the note: they own it
// or any share names them, regardless of permission level.
func NoteAccessible(ctx context.Context, db database.Database, noteID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notes n
			WHERE n.id = $1 AND (n.user_id = $2 OR EXISTS (
				SELECT 1 FROM shares s WHERE s.note_id = n.id AND s.user_id = $2
			))
		)`, noteID, userID).Scan(&ok)
	return ok, err
}

// NoteEditable reports whether the user may modify the note: they own it
// or hold a share with read-write permission.
func NoteEditable(ctx context.Context, db database.Database, noteID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notes n
			WHERE n.id = $1 AND (n.user_id = $2 OR EXISTS (
				SELECT 1 FROM shares s
				WHERE s.note_id = n.id AND s.user_id = $2 AND s.permission = 'read_write'
			))
		)`, noteID, userID).Scan(&ok)
	return ok, err
}

// NoteOwned reports whether the user is the note's owner. Deleting,
// soft-deleting, and managing shares are owner-only actions.
func NoteOwned(ctx context.Context, db database.Database, noteID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1 AND user_id = $2)`,
		noteID, userID).Scan(&ok)
	return ok, err
}
