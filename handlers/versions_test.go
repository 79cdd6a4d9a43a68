package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type VersionsHandlerTestSuite struct {
	suite.Suite
	handler *VersionsHandler
	mockDB  *MockDB
	userID  uuid.UUID
	noteID  uuid.UUID
}

func (suite *VersionsHandlerTestSuite) SetupTest() {
	suite.mockDB = &MockDB{}
	suite.handler = NewVersionsHandler(suite.mockDB)
	suite.userID = uuid.New()
	suite.noteID = uuid.New()
}

func (suite *VersionsHandlerTestSuite) TestListVersionsHiddenForStranger() {
	onQueryRow(suite.mockDB, "SELECT EXISTS", 2).Return(mockBoolRow(false))

	app := testApp(suite.userID)
	app.Get("/notes/:note_id/versions", suite.handler.ListVersions)

	resp, err := app.Test(jsonRequest("GET", "/notes/"+suite.noteID.String()+"/versions", nil))
	suite.NoError(err)
	suite.Equal(404, resp.StatusCode)
	suite.mockDB.AssertNotCalled(suite.T(), "Query", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *VersionsHandlerTestSuite) TestListVersionsEmptyHistory() {
	onQueryRow(suite.mockDB, "SELECT EXISTS", 2).Return(mockBoolRow(true))
	onQuery(suite.mockDB, "FROM note_versions", 1).Return(emptyMockRows(), nil)

	app := testApp(suite.userID)
	app.Get("/notes/:note_id/versions", suite.handler.ListVersions)

	resp, err := app.Test(jsonRequest("GET", "/notes/"+suite.noteID.String()+"/versions", nil))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	suite.Equal([]interface{}{}, body["versions"])
}

func (suite *VersionsHandlerTestSuite) TestGetVersionNotFound() {
	onQueryRow(suite.mockDB, "SELECT EXISTS", 2).Return(mockBoolRow(true))
	onQueryRow(suite.mockDB, "FROM note_versions", 2).Return(errRow(pgx.ErrNoRows, 7))

	app := testApp(suite.userID)
	app.Get("/notes/:note_id/versions/:id", suite.handler.GetVersion)

	resp, err := app.Test(jsonRequest("GET",
		"/notes/"+suite.noteID.String()+"/versions/"+uuid.NewString(), nil))
	suite.NoError(err)
	suite.Equal(404, resp.StatusCode)
}

func (suite *VersionsHandlerTestSuite) TestRestoreVersionForbiddenWithoutWriteGrant() {
	onQueryRow(suite.mockDB, "s.permission", 2).Return(mockBoolRow(false))
	onQueryRow(suite.mockDB, "SELECT EXISTS", 2).Return(mockBoolRow(true))

	app := testApp(suite.userID)
	app.Post("/notes/:note_id/versions/:id/restore", suite.handler.RestoreVersion)

	resp, err := app.Test(jsonRequest("POST",
		"/notes/"+suite.noteID.String()+"/versions/"+uuid.NewString()+"/restore", nil))
	suite.NoError(err)
	suite.Equal(403, resp.StatusCode)
}

func TestVersionsHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(VersionsHandlerTestSuite))
}
