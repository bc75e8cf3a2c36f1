package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"servicehub/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"
	// EchoIdentityKey is where the auth middleware stores the identity on echo.Context.
	EchoIdentityKey = "identity"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// WithIdentity returns a copy of ctx carrying the caller identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext extracts the caller identity placed by the auth middleware.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*models.Identity)
	return identity, ok && identity != nil
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return identity.ID, true
}

// StatusFor maps a domain error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	var (
		authErr     *AuthError
		validErr    *ValidationError
		notFoundErr *NotFoundError
		conflictErr *ConflictError
		rateErr     *RateLimitedError
		httpErr     *echo.HTTPError
	)
	switch {
	case errors.As(err, &authErr):
		if authErr.Kind == Forbidden {
			return http.StatusForbidden, string(authErr.Kind)
		}
		return http.StatusUnauthorized, string(authErr.Kind)
	case errors.As(err, &validErr):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "CONFLICT"
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.As(err, &httpErr):
		return httpErr.Code, strings.ToUpper(strings.ReplaceAll(http.StatusText(httpErr.Code), " ", "_"))
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

// RespondError writes err using the standard envelope. Unexpected errors are
// logged and replaced by a generic message so store details never leak.
func RespondError(c echo.Context, logger *zap.Logger, err error) error {
	status, code := StatusFor(err)

	var details map[string]string
	message := err.Error()

	var validErr *ValidationError
	var httpErr *echo.HTTPError
	var rateErr *RateLimitedError
	var authErr *AuthError
	switch {
	case errors.As(err, &authErr) && authErr.Message != "":
		message = authErr.Message
	case errors.As(err, &validErr):
		message = "Validation failed"
		details = validErr.Fields
	case errors.As(err, &rateErr):
		c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
	case errors.As(err, &httpErr):
		message = fmt.Sprint(httpErr.Message)
	}

	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		message = "Internal server error"
	}

	return c.JSON(status, CreateErrorResponse(code, message, details))
}

// ValidateUUID validates UUID format with comprehensive checks
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, NewValidationError(fieldName, "is required")
	}
	if len(idStr) != 36 {
		return uuid.Nil, NewValidationError(fieldName, "must be exactly 36 characters (including hyphens)")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, NewValidationError(fieldName, "is not a valid UUID")
	}
	return id, nil
}

// ValidatePaginationParams validates pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
