package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// RequestError is the typed outcome for every expected failure. The four
// kinds map one-to-one onto HTTP status categories; anything else that
// escapes a handler is a 500 and is treated as store unavailability.
type RequestError struct {
	Status  int
	Message string
	// Fields carries per-field messages for validation failures
	Fields []string
}

func (e *RequestError) Error() string {
	if len(e.Fields) > 0 {
		return e.Message + ": " + strings.Join(e.Fields, "; ")
	}
	return e.Message
}

// ErrNotFound covers both absent entities and entities the requester may
// not see; the two are deliberately indistinguishable to the caller.
func ErrNotFound(message string) *RequestError {
	return &RequestError{Status: fiber.StatusNotFound, Message: message}
}

// ErrPermissionDenied covers visible entities with a forbidden action.
func ErrPermissionDenied(message string) *RequestError {
	return &RequestError{Status: fiber.StatusForbidden, Message: message}
}

// ErrValidation covers input that violates a data-model invariant.
func ErrValidation(message string, fields ...string) *RequestError {
	return &RequestError{Status: fiber.StatusUnprocessableEntity, Message: message, Fields: fields}
}

// ErrUnauthorized covers requests with no valid identity established.
func ErrUnauthorized(message string) *RequestError {
	return &RequestError{Status: fiber.StatusUnauthorized, Message: message}
}

// Respond writes a RequestError as a structured JSON body. Raw errors are
// never exposed; a nil or foreign error becomes a generic 500.
func Respond(c *fiber.Ctx, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		body := fiber.Map{"error": reqErr.Message}
		if len(reqErr.Fields) > 0 {
			body["errors"] = reqErr.Fields
		}
		return c.Status(reqErr.Status).JSON(body)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
