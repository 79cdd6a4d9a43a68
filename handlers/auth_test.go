package handlers

import (
	"crypto/rand"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"inkwell/config"
	"inkwell/crypto"
)

type AuthHandlerTestSuite struct {
	suite.Suite
	handler *AuthHandler
	mockDB  *MockDB
	cfg     *config.Config
	userID  uuid.UUID
}

func (suite *AuthHandlerTestSuite) SetupTest() {
	suite.mockDB = &MockDB{}

	jwtSecret := make([]byte, 64)
	if _, err := rand.Read(jwtSecret); err != nil {
		suite.T().Fatalf("Failed to generate random data: %v", err)
	}

	suite.cfg = &config.Config{
		JWTSecret:       jwtSecret,
		SessionDuration: 24 * time.Hour,
		APITokenTTL:     30 * 24 * time.Hour,
	}
	suite.handler = NewAuthHandler(suite.mockDB, nil, suite.cfg)
	suite.userID = uuid.New()
}

func (suite *AuthHandlerTestSuite) TestRegisterRejectsMissingAuthMethod() {
	app := testApp(suite.userID)
	app.Post("/auth/register", suite.handler.Register)

	resp, err := app.Test(jsonRequest("POST", "/auth/register", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	}))
	suite.NoError(err)
	suite.Equal(422, resp.StatusCode)
	suite.mockDB.AssertNotCalled(suite.T(), "QueryRow", mock.Anything, mock.Anything)
}

func (suite *AuthHandlerTestSuite) TestRegisterAcceptsFederatedIdentity() {
	row := &MockRow{}
	row.On("Scan", mock.Anything).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = suite.userID
	}).Return(nil)
	onQueryRow(suite.mockDB, "INSERT INTO users", 5).Return(row)

	app := testApp(suite.userID)
	app.Post("/auth/register", suite.handler.Register)

	resp, err := app.Test(jsonRequest("POST", "/auth/register", map[string]string{
		"name":     "Ada",
		"email":    "Ada@Example.com",
		"provider": "github",
		"uid":      "12345",
	}))
	suite.NoError(err)
	suite.Equal(201, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	suite.Equal("ada@example.com", body["email"])
}

func (suite *AuthHandlerTestSuite) TestLoginRejectsUnknownEmail() {
	onQueryRow(suite.mockDB, "session_timeout", 1).Return(errRow(pgx.ErrNoRows, 3))

	app := testApp(suite.userID)
	app.Post("/auth/login", suite.handler.Login)

	resp, err := app.Test(jsonRequest("POST", "/auth/login", map[string]string{
		"email":    "ghost@example.com",
		"password": "whatever",
	}))
	suite.NoError(err)
	suite.Equal(401, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	suite.Equal("Invalid credentials", body["error"])
}

func (suite *AuthHandlerTestSuite) TestCreateTokenWithPassword() {
	salt, err := crypto.GenerateSalt()
	suite.NoError(err)
	passwordHash := crypto.HashPassword("correct horse battery", salt)

	credRow := &MockRow{}
	credRow.On("Scan", anyArgs(2)...).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = suite.userID
		dest := args[1].(*sql.NullString)
		dest.String = passwordHash
		dest.Valid = true
	}).Return(nil)
	onQueryRow(suite.mockDB, "password_hash", 1).Return(credRow)
	onExec(suite.mockDB, "api_token_hash", 3).Return(int64(1), nil)

	app := testApp(suite.userID)
	app.Post("/auth/token", suite.handler.CreateToken)

	resp, err := app.Test(jsonRequest("POST", "/auth/token", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
	}))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	token, ok := body["token"].(string)
	suite.True(ok)
	// 256-bit token as hex
	suite.Len(token, 64)
	suite.NotEmpty(body["expires_at"])
}

func (suite *AuthHandlerTestSuite) TestCreateTokenRejectsWrongPassword() {
	salt, err := crypto.GenerateSalt()
	suite.NoError(err)
	passwordHash := crypto.HashPassword("the real password", salt)

	credRow := &MockRow{}
	credRow.On("Scan", anyArgs(2)...).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = suite.userID
		dest := args[1].(*sql.NullString)
		dest.String = passwordHash
		dest.Valid = true
	}).Return(nil)
	onQueryRow(suite.mockDB, "password_hash", 1).Return(credRow)

	app := testApp(suite.userID)
	app.Post("/auth/token", suite.handler.CreateToken)

	resp, err := app.Test(jsonRequest("POST", "/auth/token", map[string]string{
		"email":    "ada@example.com",
		"password": "a guess",
	}))
	suite.NoError(err)
	suite.Equal(401, resp.StatusCode)
	suite.mockDB.AssertNotCalled(suite.T(), "Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AuthHandlerTestSuite) TestCreateTokenWithFederatedPair() {
	idRow := &MockRow{}
	idRow.On("Scan", mock.Anything).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = suite.userID
	}).Return(nil)
	onQueryRow(suite.mockDB, "uid = $2", 2).Return(idRow)
	onExec(suite.mockDB, "api_token_hash", 3).Return(int64(1), nil)

	app := testApp(suite.userID)
	app.Post("/auth/token", suite.handler.CreateToken)

	resp, err := app.Test(jsonRequest("POST", "/auth/token", map[string]string{
		"email": "ada@example.com",
		"uid":   "12345",
	}))
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)
}

func (suite *AuthHandlerTestSuite) TestRefreshTokenReissuesExpiredToken() {
	token, err := crypto.GenerateAPIToken()
	suite.NoError(err)

	expired := time.Now().Add(-time.Hour)
	lookupRow := &MockRow{}
	lookupRow.On("Scan", anyArgs(2)...).Run(func(args mock.Arguments) {
		*(args[0].(*uuid.UUID)) = suite.userID
		dest := args[1].(*sql.NullTime)
		dest.Time = expired
		dest.Valid = true
	}).Return(nil)
	onQueryRow(suite.mockDB, "api_token_hash = $1", 1).Return(lookupRow)
	onExec(suite.mockDB, "api_token_hash", 3).Return(int64(1), nil)

	app := testApp(suite.userID)
	app.Post("/auth/refresh", suite.handler.RefreshToken)

	req := jsonRequest("POST", "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	suite.NoError(err)
	suite.Equal(200, resp.StatusCode)

	body := decodeBody(suite.T(), resp)
	fresh, ok := body["token"].(string)
	suite.True(ok)
	suite.NotEqual(token, fresh, "an expired token must be replaced, not extended")
}

func TestAuthHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerTestSuite))
}

func TestValidateAuthMethod(t *testing.T) {
	if err := validateAuthMethod("", "", ""); err == nil {
		t.Error("account with no credentials must be rejected")
	}
	if err := validateAuthMethod("", "github", ""); err == nil {
		t.Error("provider without uid must be rejected")
	}
	if err := validateAuthMethod("hash", "", ""); err != nil {
		t.Errorf("password-only account must be accepted: %v", err)
	}
	if err := validateAuthMethod("", "github", "42"); err != nil {
		t.Errorf("federated account must be accepted: %v", err)
	}
}

func TestSessionTTL(t *testing.T) {
	max := 24 * time.Hour
	tests := []struct {
		name           string
		timeoutSeconds int
		expected       time.Duration
	}{
		{"per-user timeout within the cap", 3600, time.Hour},
		{"zero timeout falls back to the cap", 0, max},
		{"negative timeout falls back to the cap", -5, max},
		{"oversized timeout is clamped", int((48 * time.Hour).Seconds()), max},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionTTL(tt.timeoutSeconds, max); got != tt.expected {
				t.Errorf("sessionTTL(%d) = %v, want %v", tt.timeoutSeconds, got, tt.expected)
			}
		})
	}
}
