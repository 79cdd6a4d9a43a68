package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type NotesHandlerTestSuite struct {
	suite.Suite
	handler *NotesHandler
	mockDB  *MockDB
	userID  uuid.UUID
	noteID  uuid.UUID
}

func (suite *NotesHandlerTestSuite) SetupTest() {
	suite.mockDB = &MockDB{}
	suite.handler = NewNotesHandler(suite.mockDB)
	suite.userID = uuid.New()
	suite.noteID = uuid.New()
}

func (suite *NotesHandlerTestSuite) sampleNote() Note {
	title := "Groceries"
	now := time.Now()
	return Note{
		ID:        suite.noteID,
		UserID:    suite.userID,
		Title:     &title,
		Body:      "milk and eggs",
		MaxSize:   DefaultMaxNoteSize,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// expectEditable wires the two access predicate queries. The permission
// matcher must be registered before the generic EXISTS matcher because
// the editable query contains both substrings.
func (suite *NotesHandlerTestSuite) expectEditable(accessible, editable bool) {
	onQueryRow(suite.mockDB, "s.permission", 2).Return(mockBoolRow(editable))
	onQueryRow(suite.mockDB, "SELECT EXISTS", 2).Return(mockBoolRow(accessible))
}

func (suite *NotesHandlerTestSuite) expectNoTags() {
	onQuery(suite.mockDB, "note_tags nt", 1).Return(emptyMockRows(), nil)
}

func (suite *NotesHandlerTestSuite) TestCreateNoteSuccess() {
	note := suite.sampleNote()
	onQueryRow(suite.mockDB, "INSERT INTO notes", 5).Return(mockNoteRow(note))

	app := testApp(suite.userID)
	app.Post("/notes", suite.handler.CreateNote)

	resp, err := app.Test(jsonRequest("POST", "/notes", map[string]interface{}{
		"title": "Groceries",
		"body":  "milk and eggs",
	}))
	suite.NoError(err)
	suite.Equal(201, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	suite.Equal(suite.noteID.String(), body["id"])

	// Creation must not open a versioning transaction
	suite.mockDB.AssertNotCalled(suite.T(), "Begin", mock.Anything)
}

func (suite *NotesHandlerTestSuite) TestCreateNoteRejectsOversizedBody() {
	app := testApp(suite.userID)
	app.Post("/notes", suite.handler.CreateNote)

	resp, err := app.Test(jsonRequest("POST", "/notes", map[string]interface{}{
		"body":     "this body is far too long",
		"max_size": 10,
	}))
	suite.NoError(err)
	suite.Equal(422, resp.StatusCode)
	suite.mockDB.AssertNotCalled(suite.T(), "QueryRow", mock.Anything, mock.Anything)
}

func (suite *NotesHandlerTestSuite) TestUpdateNoteCapturesPreUpdateVersion() {
	suite.expectEditable(true, true)

	mockTx := &MockTx{}
	suite.mockDB.On("Begin", mock.Anything).Return(mockTx, nil)

	oldTitle := "Groceries"
	lockRow := &MockRow{}
	lockRow.On("Scan", anyArgs(4)...).Run(func(args mock.Arguments) {
		*(args[0].(**string)) = &oldTitle
		*(args[1].(*string)) = "old body"
		*(args[2].(*bool)) = false
		*(args[3].(*int)) = DefaultMaxNoteSize
	}).Return(nil)
	onTxQueryRow(mockTx, "FOR UPDATE", 1).Return(lockRow)

	versionCaptured := false
	onTxExec(mockTx, "note_versions", 3).Run(func(args mock.Arguments) {
		versionCaptured = true
		suite.Equal("old body", args[4].(string))
	}).Return(int64(1), nil)
	onTxExec(mockTx, "UPDATE notes SET title", 5).Return(int64(1), nil)
	mockTx.On("Commit", mock.Anything).Return(nil)
	mockTx.On("Rollback", mock.Anything).Return(nil)

	updated := suite.sampleNote()
	updated.Body = "new body"
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(updated))
	suite.expectNoTags()

	app := testApp(suite.userID)
	app.Put("/notes/:id", suite.handler.UpdateNote)

	resp, err := app.Test(jsonRequest("PUT", "/notes/"+suite.noteID.String(), map[string]interface{}{
		"body": "new body",
	}))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)
	suite.True(versionCaptured, "pre-update state must be versioned when the body changes")
}

func (suite *NotesHandlerTestSuite) TestUpdateNoteSkipsVersionWhenBodyUnchanged() {
	suite.expectEditable(true, true)

	mockTx := &MockTx{}
	suite.mockDB.On("Begin", mock.Anything).Return(mockTx, nil)

	lockRow := &MockRow{}
	lockRow.On("Scan", anyArgs(4)...).Run(func(args mock.Arguments) {
		*(args[0].(**string)) = nil
		*(args[1].(*string)) = "same body"
		*(args[2].(*bool)) = false
		*(args[3].(*int)) = DefaultMaxNoteSize
	}).Return(nil)
	onTxQueryRow(mockTx, "FOR UPDATE", 1).Return(lockRow)

	// No note_versions expectation: an attempted insert would fail the
	// test as an unexpected call
	onTxExec(mockTx, "UPDATE notes SET title", 5).Return(int64(1), nil)
	mockTx.On("Commit", mock.Anything).Return(nil)
	mockTx.On("Rollback", mock.Anything).Return(nil)

	renamed := suite.sampleNote()
	renamed.Body = "same body"
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(renamed))
	suite.expectNoTags()

	app := testApp(suite.userID)
	app.Put("/notes/:id", suite.handler.UpdateNote)

	resp, err := app.Test(jsonRequest("PUT", "/notes/"+suite.noteID.String(), map[string]interface{}{
		"title": "Renamed",
	}))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestDeleteNoteMovesActiveNoteToTrash() {
	note := suite.sampleNote()
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(note))
	onExec(suite.mockDB, "SET trashed = TRUE", 1).Return(int64(1), nil)

	app := testApp(suite.userID)
	app.Delete("/notes/:id", suite.handler.DeleteNote)

	resp, err := app.Test(jsonRequest("DELETE", "/notes/"+suite.noteID.String(), nil))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)
	body := decodeBody(suite.T(), resp)
	suite.Equal("Note moved to trash", body["message"])
}

func (suite *NotesHandlerTestSuite) TestDeleteNoteDestroysTrashedNote() {
	note := suite.sampleNote()
	note.Trashed = true
	trashedAt := time.Now().Add(-time.Hour)
	note.TrashedAt = &trashedAt
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(note))
	onExec(suite.mockDB, "DELETE FROM notes", 1).Return(int64(1), nil)

	app := testApp(suite.userID)
	app.Delete("/notes/:id", suite.handler.DeleteNote)

	resp, err := app.Test(jsonRequest("DELETE", "/notes/"+suite.noteID.String(), nil))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)
	body := decodeBody(suite.T(), resp)
	suite.Equal("Note permanently deleted", body["message"])
}

func (suite *NotesHandlerTestSuite) TestDeleteNoteRequiresOwner() {
	note := suite.sampleNote()
	note.UserID = uuid.New()
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(note))

	app := testApp(suite.userID)
	app.Delete("/notes/:id", suite.handler.DeleteNote)

	resp, err := app.Test(jsonRequest("DELETE", "/notes/"+suite.noteID.String(), nil))
	suite.NoError(err)
	suite.Equal(403, resp.StatusCode)
	suite.mockDB.AssertNotCalled(suite.T(), "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *NotesHandlerTestSuite) TestGetNoteHidesInaccessibleNotes() {
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(errRow(pgx.ErrNoRows, 11))

	app := testApp(suite.userID)
	app.Get("/notes/:id", suite.handler.GetNote)

	resp, err := app.Test(jsonRequest("GET", "/notes/"+suite.noteID.String(), nil))
	suite.NoError(err)
	suite.Equal(404, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestTogglePinForbiddenWithoutWriteGrant() {
	suite.expectEditable(true, false)

	app := testApp(suite.userID)
	app.Patch("/notes/:id/toggle_pin", suite.handler.TogglePin)

	resp, err := app.Test(jsonRequest("PATCH", "/notes/"+suite.noteID.String()+"/toggle_pin", nil))
	suite.NoError(err)
	suite.Equal(403, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestRestoreNonTrashedNoteNotFound() {
	suite.expectEditable(true, true)
	onExec(suite.mockDB, "trashed = FALSE", 1).Return(int64(0), nil)

	app := testApp(suite.userID)
	app.Patch("/notes/:id/restore", suite.handler.RestoreNote)

	resp, err := app.Test(jsonRequest("PATCH", "/notes/"+suite.noteID.String()+"/restore", nil))
	suite.NoError(err)
	suite.Equal(404, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestTogglePinBlockedOnTrashedNote() {
	suite.expectEditable(true, true)
	onExec(suite.mockDB, "pinned = NOT pinned", 1).Return(int64(0), nil)

	app := testApp(suite.userID)
	app.Patch("/notes/:id/toggle_pin", suite.handler.TogglePin)

	resp, err := app.Test(jsonRequest("PATCH", "/notes/"+suite.noteID.String()+"/toggle_pin", nil))
	suite.NoError(err)
	suite.Equal(404, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestMergeJoinsBodiesWithSeparator() {
	suite.expectEditable(true, true)

	otherID := uuid.New()
	other := suite.sampleNote()
	other.ID = otherID
	other.Title = nil
	other.Body = ""

	merged := suite.sampleNote()
	merged.Body = "First\n\n---\n\n"

	// First matching load resolves the merge source, second the result
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(other)).Once()
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(merged)).Once()

	mockTx := &MockTx{}
	suite.mockDB.On("Begin", mock.Anything).Return(mockTx, nil)

	oldTitle := "Groceries"
	lockRow := &MockRow{}
	lockRow.On("Scan", anyArgs(2)...).Run(func(args mock.Arguments) {
		*(args[0].(**string)) = &oldTitle
		*(args[1].(*string)) = "First"
	}).Return(nil)
	onTxQueryRow(mockTx, "FOR UPDATE", 1).Return(lockRow)

	onTxExec(mockTx, "note_versions", 3).Return(int64(1), nil)

	var mergedBody string
	onTxExec(mockTx, "SET body", 2).Run(func(args mock.Arguments) {
		mergedBody = args[2].(string)
	}).Return(int64(1), nil)
	onTxExec(mockTx, "note_tags", 2).Return(int64(1), nil)
	onTxExec(mockTx, "SET trashed", 1).Return(int64(1), nil)
	mockTx.On("Commit", mock.Anything).Return(nil)
	mockTx.On("Rollback", mock.Anything).Return(nil)

	suite.expectNoTags()

	app := testApp(suite.userID)
	app.Post("/notes/:id/merge", suite.handler.MergeNote)

	resp, err := app.Test(jsonRequest("POST", "/notes/"+suite.noteID.String()+"/merge", map[string]interface{}{
		"merge_with_id": otherID.String(),
	}))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)

	// The separator is inserted even when the merged-in body is empty
	suite.Equal("First\n\n---\n\n", mergedBody)
}

func (suite *NotesHandlerTestSuite) TestMergeRejectsSelfMerge() {
	suite.expectEditable(true, true)

	app := testApp(suite.userID)
	app.Post("/notes/:id/merge", suite.handler.MergeNote)

	resp, err := app.Test(jsonRequest("POST", "/notes/"+suite.noteID.String()+"/merge", map[string]interface{}{
		"merge_with_id": suite.noteID.String(),
	}))
	suite.NoError(err)
	suite.Equal(422, resp.StatusCode)
}

func (suite *NotesHandlerTestSuite) TestDuplicateResetsFlagsAndSuffixesTitle() {
	source := suite.sampleNote()
	source.Pinned = true
	source.Archived = true

	newID := uuid.New()
	copyTitle := "Groceries (copy)"
	dup := suite.sampleNote()
	dup.ID = newID
	dup.Title = &copyTitle

	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(source)).Once()
	onQueryRow(suite.mockDB, "n.max_size", 2).Return(mockNoteRow(dup)).Once()

	mockTx := &MockTx{}
	suite.mockDB.On("Begin", mock.Anything).Return(mockTx, nil)

	var insertedTitle *string
	idRow := &MockRow{}
	idRow.On("Scan", mock.Anything).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = newID
	}).Return(nil)
	onTxQueryRow(mockTx, "INSERT INTO notes", 4).Run(func(args mock.Arguments) {
		insertedTitle = args[3].(*string)
	}).Return(idRow)
	onTxExec(mockTx, "note_tags", 2).Return(int64(1), nil)
	mockTx.On("Commit", mock.Anything).Return(nil)
	mockTx.On("Rollback", mock.Anything).Return(nil)

	suite.expectNoTags()

	app := testApp(suite.userID)
	app.Post("/notes/:id/duplicate", suite.handler.DuplicateNote)

	resp, err := app.Test(jsonRequest("POST", "/notes/"+suite.noteID.String()+"/duplicate", nil))
	suite.NoError(err)
	suite.Equal(201, resp.StatusCode)

	suite.NotNil(insertedTitle)
	suite.Equal("Groceries (copy)", *insertedTitle)

	body := decodeBody(suite.T(), resp)
	suite.Equal(false, body["pinned"])
	suite.Equal(false, body["archived"])
}

func TestNotesHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(NotesHandlerTestSuite))
}

func TestNoteMarkdown(t *testing.T) {
	title := "Plan"
	if got := noteMarkdown(&title, "step one"); got != "# Plan\n\nstep one" {
		t.Errorf("unexpected markdown: %q", got)
	}
	if got := noteMarkdown(nil, "just body"); got != "just body" {
		t.Errorf("untitled note must render body only, got %q", got)
	}
	empty := "  "
	if got := noteMarkdown(&empty, "body"); got != "body" {
		t.Errorf("blank title must render body only, got %q", got)
	}
}

func TestValidateBody(t *testing.T) {
	if err := validateBody("short", 10); err != nil {
		t.Errorf("expected body within max_size to pass: %v", err)
	}
	if err := validateBody("this is too long", 5); err == nil {
		t.Error("expected oversized body to fail")
	}
	if err := validateBody("", 0); err == nil {
		t.Error("expected non-positive max_size to fail")
	}
}
